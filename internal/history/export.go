package history

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"signalbot/internal/model"
)

var csvHeader = []string{"timestamp", "price", "high", "low", "volume"}

// WriteCSV writes samples as CSV with a header row. Timestamps are RFC 3339
// in UTC.
func WriteCSV(w io.Writer, samples []model.PriceSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write([]string{
			s.TS.UTC().Format(time.RFC3339Nano),
			formatFloat(s.Price),
			formatFloat(s.High),
			formatFloat(s.Low),
			formatFloat(s.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
