package render

import (
	"fmt"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PDFInspector counts pages with pdfcpu. It only cross-checks renderer output;
// the renderer stays authoritative when pdfcpu cannot read a file.
type PDFInspector struct{}

func NewPDFInspector() *PDFInspector {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFInspector{}
}

func (PDFInspector) PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// pdfcpu writes into the configuration; never share one across calls
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}
