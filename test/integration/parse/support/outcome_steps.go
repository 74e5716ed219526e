package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/ocrparse/internal/config"
	"github.com/MeKo-Tech/ocrparse/internal/parser"
	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

// RegisterOutcomeSteps registers the assertions on a finished parse.
func (testCtx *TestContext) RegisterOutcomeSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the parse should succeed$`, testCtx.theParseShouldSucceed)
	sc.Step(`^the parse should fail with class "([^"]*)"$`, testCtx.theParseShouldFailWithClass)
	sc.Step(`^the text should contain "([^"]*)"$`, testCtx.theTextShouldContain)
	sc.Step(`^the text should be empty$`, testCtx.theTextShouldBeEmpty)
	sc.Step(`^the OCR service should not be called$`, testCtx.theServiceShouldNotBeCalled)
	sc.Step(`^the document should be uploaded (\d+) times?$`, testCtx.theDocumentShouldBeUploaded)
	sc.Step(`^an archive should be kept$`, testCtx.anArchiveShouldBeKept)
	sc.Step(`^no archive should be kept$`, testCtx.noArchiveShouldBeKept)
	sc.Step(`^the form code should be "([^"]*)"$`, testCtx.theFormCodeShouldBe)
	sc.Step(`^the form code should be empty$`, testCtx.theFormCodeShouldBeEmpty)
	sc.Step(`^recognition should run at (\d+) DPI$`, testCtx.recognitionShouldRunAtDPI)
	sc.Step(`^the issued tokens should be persisted$`, testCtx.theIssuedTokensShouldBePersisted)
	sc.Step(`^the working directory should be removed$`, testCtx.theWorkingDirectoryShouldBeRemoved)
}

func (testCtx *TestContext) theParseShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("parse failed: %w", testCtx.LastError)
	}
	if testCtx.Outcome == nil && testCtx.FieldOutcome == nil {
		return errors.New("parse returned no outcome")
	}
	return nil
}

func (testCtx *TestContext) theParseShouldFailWithClass(class string) error {
	var pe *parser.ParseError
	if !errors.As(testCtx.LastError, &pe) {
		return fmt.Errorf("expected a parse error, got %v", testCtx.LastError)
	}
	if pe.Class != class {
		return fmt.Errorf("expected class %q, got %q (%s)", class, pe.Class, pe.Message)
	}
	return nil
}

func (testCtx *TestContext) theTextShouldContain(fragment string) error {
	if testCtx.Outcome == nil {
		return errors.New("no parse outcome")
	}
	if !strings.Contains(testCtx.Outcome.Text, fragment) {
		return fmt.Errorf("text %q does not contain %q", testCtx.Outcome.Text, fragment)
	}
	return nil
}

func (testCtx *TestContext) theTextShouldBeEmpty() error {
	if testCtx.Outcome == nil {
		return errors.New("no parse outcome")
	}
	if testCtx.Outcome.Text != "" {
		return fmt.Errorf("expected empty text, got %q", testCtx.Outcome.Text)
	}
	return nil
}

func (testCtx *TestContext) theServiceShouldNotBeCalled() error {
	if testCtx.Server == nil {
		return nil
	}
	if n := testCtx.Server.TotalCalls(); n != 0 {
		return fmt.Errorf("expected no calls to the OCR service, got %d", n)
	}
	return nil
}

func (testCtx *TestContext) theDocumentShouldBeUploaded(times int) error {
	if n := testCtx.ensureServer().Calls(testutil.PathUpload); n != times {
		return fmt.Errorf("expected %d uploads, got %d", times, n)
	}
	return nil
}

func (testCtx *TestContext) archivePath() string {
	switch {
	case testCtx.Outcome != nil:
		return testCtx.Outcome.ArchivePath
	case testCtx.FieldOutcome != nil:
		return testCtx.FieldOutcome.ArchivePath
	}
	return ""
}

func (testCtx *TestContext) anArchiveShouldBeKept() error {
	path := testCtx.archivePath()
	if path == "" {
		return errors.New("no archive path returned")
	}
	if !testutil.FileExists(path) {
		return fmt.Errorf("archive %s does not exist", path)
	}
	return nil
}

func (testCtx *TestContext) noArchiveShouldBeKept() error {
	if path := testCtx.archivePath(); path != "" {
		return fmt.Errorf("expected no archive, got %s", path)
	}
	return nil
}

func (testCtx *TestContext) formCode() (string, error) {
	switch {
	case testCtx.Outcome != nil:
		return testCtx.Outcome.Extraction.FormCode, nil
	case testCtx.FieldOutcome != nil:
		return testCtx.FieldOutcome.Extraction.FormCode, nil
	}
	return "", errors.New("no parse outcome")
}

func (testCtx *TestContext) theFormCodeShouldBe(expected string) error {
	code, err := testCtx.formCode()
	if err != nil {
		return err
	}
	if code != expected {
		return fmt.Errorf("expected form code %q, got %q", expected, code)
	}
	return nil
}

func (testCtx *TestContext) theFormCodeShouldBeEmpty() error {
	return testCtx.theFormCodeShouldBe("")
}

func (testCtx *TestContext) recognitionShouldRunAtDPI(dpi int) error {
	if testCtx.Engine == nil || len(testCtx.Engine.Calls) == 0 {
		return errors.New("recognition was not run")
	}
	if got := testCtx.Engine.Calls[0].ImageDPI; got != dpi {
		return fmt.Errorf("expected recognition at %d DPI, got %d", dpi, got)
	}
	return nil
}

func (testCtx *TestContext) theIssuedTokensShouldBePersisted() error {
	s, err := testCtx.Store.Settings(context.Background())
	if err != nil {
		return err
	}
	want := map[string]string{
		config.UserArgAccessToken:  testCtx.Server.IssueAccess,
		config.UserArgRefreshToken: testCtx.Server.IssueRefresh,
	}
	for key, value := range want {
		if got, _ := s.UserArgs[key].(string); got != value {
			return fmt.Errorf("user arg %s: expected %q, got %q", key, value, got)
		}
	}
	return nil
}

func (testCtx *TestContext) theWorkingDirectoryShouldBeRemoved() error {
	entries, err := os.ReadDir(testCtx.Config.Parser.WorkDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("working directory still holds %d entries", len(entries))
	}
	return nil
}
