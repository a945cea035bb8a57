package report

import (
	"io"
	"os"

	"github.com/gocarina/gocsv"
)

func WriteCsv(in interface{}, w io.Writer) error {
	return gocsv.Marshal(in, w)
}

// WriteCsvFile writes the rows to fileName, or to stdout when fileName is "-".
func WriteCsvFile(in interface{}, fileName string) error {
	if fileName == "-" {
		return WriteCsv(in, os.Stdout)
	}
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := WriteCsv(in, file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
