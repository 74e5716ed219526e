package config

import (
	"maps"
	"slices"

	"github.com/spf13/cast"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
)

// Mode selects how existing text in a document is treated.
type Mode string

const (
	ModeSkip          Mode = "skip"
	ModeSkipNoArchive Mode = "skip_noarchive"
	ModeRedo          Mode = "redo"
	ModeForce         Mode = "force"
)

// SkipArchive controls when no archive PDF is kept.
type SkipArchive string

const (
	SkipArchiveNever    SkipArchive = "never"
	SkipArchiveWithText SkipArchive = "with_text"
	SkipArchiveAlways   SkipArchive = "always"
)

// Clean selects page cleaning before recognition.
type Clean string

const (
	CleanNone  Clean = "none"
	CleanClean Clean = "clean"
	CleanFinal Clean = "clean-final"
)

// Keys used in user args for values written back by the service.
const (
	UserArgAccessToken  = "access_token_ocr"
	UserArgRefreshToken = "refresh_token_ocr"
	UserArgFormCode     = "form_code"
)

// Keys used in user args for the remote service settings.
const (
	UserArgLoginURL        = "api_login_ocr"
	UserArgRefreshURL      = "api_refresh_ocr"
	UserArgUploadURL       = "api_upload_file_ocr"
	UserArgOCRByFileIDURL  = "api_ocr_by_file_id"
	UserArgFieldURL        = "api_ocr_field"
	UserArgUsername        = "username_ocr"
	UserArgPassword        = "password_ocr"
	UserArgEnableOCRFields = "enable_ocr_field"
)

// IsAPIUserArg reports whether key is read into the API settings rather
// than passed to the recognition engine.
func IsAPIUserArg(key string) bool {
	switch key {
	case UserArgAccessToken, UserArgRefreshToken, UserArgFormCode,
		UserArgLoginURL, UserArgRefreshURL, UserArgUploadURL, UserArgOCRByFileIDURL, UserArgFieldURL,
		UserArgUsername, UserArgPassword, UserArgEnableOCRFields:
		return true
	}
	return false
}

var (
	validModes       = []string{string(ModeSkip), string(ModeSkipNoArchive), string(ModeRedo), string(ModeForce)}
	validSkipArchive = []string{string(SkipArchiveNever), string(SkipArchiveWithText), string(SkipArchiveAlways)}
	validClean       = []string{string(CleanNone), string(CleanClean), string(CleanFinal)}
	validOutputTypes = []string{"pdf", "pdfa", "pdfa-1", "pdfa-2", "pdfa-3"}
)

// APISettings is the remote service part of a settings snapshot.
type APISettings struct {
	Endpoints             ocrapi.Endpoints
	Credentials           ocrapi.Credentials
	Tokens                ocrapi.TokenPair
	EnableFieldExtraction bool
	FormCodes             []ocrapi.FormCode
	Policies              ocrapi.Policies
}

// ParseSettings is the settings snapshot one parse runs with. It is
// returned by value and never changes while the parse runs.
type ParseSettings struct {
	Mode                    Mode
	SkipArchiveFile         SkipArchive
	Clean                   Clean
	OutputType              string
	ColorConversionStrategy string
	Language                string
	// ImageDPI is the configured fallback resolution; 0 means unset.
	ImageDPI int
	// MaxImagePixels is unset when negative; 0 disables the pixel limit.
	MaxImagePixels   int64
	Pages            int
	Deskew           bool
	Rotate           bool
	RotateThreshold  float64
	ThreadsPerWorker int
	UserArgs         map[string]any
	API              APISettings
}

// SkipArchiveForText reports whether a document that already has text
// should be returned without running recognition.
func (s ParseSettings) SkipArchiveForText() bool {
	return s.Mode == ModeSkipNoArchive ||
		s.SkipArchiveFile == SkipArchiveWithText ||
		s.SkipArchiveFile == SkipArchiveAlways
}

// Clone returns a copy that shares no maps or slices with s.
func (s ParseSettings) Clone() ParseSettings {
	out := s
	out.UserArgs = maps.Clone(s.UserArgs)
	out.API.FormCodes = slices.Clone(s.API.FormCodes)
	return out
}

// Settings builds the parse snapshot from the loaded configuration.
// API settings stored in user args take precedence over the configured
// ones, since that is where refreshed tokens are written back.
func (c *Config) Settings() ParseSettings {
	s := ParseSettings{
		Mode:                    Mode(c.OCR.Mode),
		SkipArchiveFile:         SkipArchive(c.OCR.SkipArchiveFile),
		Clean:                   Clean(c.OCR.Clean),
		OutputType:              c.OCR.OutputType,
		ColorConversionStrategy: c.OCR.ColorConversionStrategy,
		Language:                c.OCR.Language,
		ImageDPI:                c.OCR.ImageDPI,
		MaxImagePixels:          c.OCR.MaxImagePixels,
		Pages:                   c.OCR.Pages,
		Deskew:                  c.OCR.Deskew,
		Rotate:                  c.OCR.Rotate,
		RotateThreshold:         c.OCR.RotateThreshold,
		ThreadsPerWorker:        c.OCR.ThreadsPerWorker,
		UserArgs:                maps.Clone(c.OCR.UserArgs),
		API: APISettings{
			Endpoints:             c.API.Endpoints,
			Credentials:           ocrapi.Credentials{Username: c.API.Username, Password: c.API.Password},
			Tokens:                ocrapi.TokenPair{Access: c.API.AccessToken, Refresh: c.API.RefreshToken},
			EnableFieldExtraction: c.API.EnableFieldExtraction,
			FormCodes:             slices.Clone(c.API.FormCodes),
			Policies:              c.API.Retry,
		},
	}
	applyUserArgAPI(&s)
	return s
}

func applyUserArgAPI(s *ParseSettings) {
	for key, dst := range map[string]*string{
		UserArgAccessToken:    &s.API.Tokens.Access,
		UserArgRefreshToken:   &s.API.Tokens.Refresh,
		UserArgLoginURL:       &s.API.Endpoints.Login,
		UserArgRefreshURL:     &s.API.Endpoints.Refresh,
		UserArgUploadURL:      &s.API.Endpoints.Upload,
		UserArgOCRByFileIDURL: &s.API.Endpoints.OCRByFileID,
		UserArgFieldURL:       &s.API.Endpoints.Field,
		UserArgUsername:       &s.API.Credentials.Username,
		UserArgPassword:       &s.API.Credentials.Password,
	} {
		if v, ok := s.UserArgs[key].(string); ok {
			*dst = v
		}
	}
	if v, ok := s.UserArgs[UserArgEnableOCRFields]; ok {
		if enabled, err := cast.ToBoolE(v); err == nil {
			s.API.EnableFieldExtraction = enabled
		}
	}
	if codes := formCodesFromArgs(s.UserArgs[UserArgFormCode]); codes != nil {
		s.API.FormCodes = codes
	}
}

// formCodesFromArgs accepts either a list of names or a list of {name: ...}
// objects.
func formCodesFromArgs(v any) []ocrapi.FormCode {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	codes := make([]ocrapi.FormCode, 0, len(list))
	for _, item := range list {
		switch c := item.(type) {
		case string:
			codes = append(codes, ocrapi.FormCode{Name: c})
		case map[string]any:
			if name, ok := c["name"].(string); ok {
				codes = append(codes, ocrapi.FormCode{Name: name})
			}
		}
	}
	return codes
}

// TokenArgs returns the user args written back after a login or refresh.
func TokenArgs(tokens ocrapi.TokenPair) map[string]any {
	return map[string]any{
		UserArgAccessToken:  tokens.Access,
		UserArgRefreshToken: tokens.Refresh,
	}
}
