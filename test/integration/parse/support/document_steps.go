package support

import (
	"context"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/parser"
	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

// RegisterDocumentSteps registers the steps that set up and parse documents.
func (testCtx *TestContext) RegisterDocumentSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a fake OCR service$`, testCtx.aFakeOCRService)
	sc.Step(`^the OCR service matches form code "([^"]*)"$`, testCtx.theServiceMatchesFormCode)
	sc.Step(`^the OCR service fails every upload$`, testCtx.theServiceFailsEveryUpload)
	sc.Step(`^the OCR mode is "([^"]*)"$`, testCtx.theOCRModeIs)
	sc.Step(`^the archive setting is "([^"]*)"$`, testCtx.theArchiveSettingIs)
	sc.Step(`^field extraction with candidates "([^"]*)"$`, testCtx.fieldExtractionWithCandidates)
	sc.Step(`^no image DPI is configured$`, testCtx.noImageDPIIsConfigured)

	sc.Step(`^a PDF with embedded text$`, testCtx.aPDFWithEmbeddedText)
	sc.Step(`^a scanned PDF with (\d+) pages?$`, testCtx.aScannedPDFWithPages)
	sc.Step(`^an encrypted PDF$`, testCtx.anEncryptedPDF)
	sc.Step(`^a PNG image (\d+) pixels wide without DPI metadata$`, testCtx.aPNGImageWithoutDPI)

	sc.Step(`^I parse the document$`, testCtx.iParseTheDocument)
	sc.Step(`^I parse the document for fields$`, testCtx.iParseTheDocumentForFields)
}

func (testCtx *TestContext) aFakeOCRService() error {
	testCtx.ensureServer()
	return nil
}

func (testCtx *TestContext) theServiceMatchesFormCode(code string) error {
	testCtx.ensureServer().FieldMatches[code] = true
	return nil
}

func (testCtx *TestContext) theServiceFailsEveryUpload() error {
	srv := testCtx.ensureServer()
	srv.UploadStatuses = []int{500, 500, 500, 500, 500, 500, 500, 500}
	return nil
}

func (testCtx *TestContext) theOCRModeIs(mode string) error {
	testCtx.Config.OCR.Mode = mode
	return nil
}

func (testCtx *TestContext) theArchiveSettingIs(setting string) error {
	testCtx.Config.OCR.SkipArchiveFile = setting
	return nil
}

func (testCtx *TestContext) fieldExtractionWithCandidates(list string) error {
	testCtx.Config.API.EnableFieldExtraction = true
	testCtx.Config.API.FormCodes = nil
	for _, name := range strings.Split(list, ",") {
		testCtx.Config.API.FormCodes = append(testCtx.Config.API.FormCodes, ocrapi.FormCode{Name: strings.TrimSpace(name)})
	}
	return nil
}

func (testCtx *TestContext) noImageDPIIsConfigured() error {
	testCtx.Config.OCR.ImageDPI = 0
	return nil
}

func (testCtx *TestContext) aPDFWithEmbeddedText() error {
	testCtx.DocumentPath = testutil.WriteTextPDF(testCtx.T, testCtx.TempDir, "text.pdf", testutil.SampleText)
	testCtx.MimeType = "application/pdf"
	return nil
}

func (testCtx *TestContext) aScannedPDFWithPages(pages int) error {
	testCtx.DocumentPath = testutil.WriteScannedPDF(testCtx.T, testCtx.TempDir, "scan.pdf", pages)
	testCtx.MimeType = "application/pdf"
	return nil
}

func (testCtx *TestContext) anEncryptedPDF() error {
	testCtx.DocumentPath = testutil.WriteEncryptedPDF(testCtx.T, testCtx.TempDir, "locked.pdf", testutil.SampleText)
	testCtx.MimeType = "application/pdf"
	return nil
}

func (testCtx *TestContext) aPNGImageWithoutDPI(width int) error {
	testCtx.DocumentPath = testutil.WritePNG(testCtx.T, testCtx.TempDir, "scan.png", width, width*297/210, 0)
	testCtx.MimeType = "image/png"
	return nil
}

func (testCtx *TestContext) request() parser.Request {
	return parser.Request{DocumentPath: testCtx.DocumentPath, MimeType: testCtx.MimeType}
}

func (testCtx *TestContext) iParseTheDocument() error {
	p := testCtx.newParser()
	testCtx.Outcome, testCtx.LastError = p.Parse(context.Background(), testCtx.request())
	return nil
}

func (testCtx *TestContext) iParseTheDocumentForFields() error {
	p := testCtx.newParser()
	testCtx.FieldOutcome, testCtx.LastError = p.ParseFields(context.Background(), testCtx.request())
	return nil
}
