package recognition

import (
	"context"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/ocrparse/internal/ocrapi"
	"github.com/MeKo-Tech/ocrparse/internal/render"
	"github.com/MeKo-Tech/ocrparse/internal/testutil"
)

// blankRasterizer renders every page as a small white image.
type blankRasterizer struct{ pages int }

func (r blankRasterizer) Open(string) (render.RasterDocument, error) { return blankDocument(r), nil }

type blankDocument struct{ pages int }

func (d blankDocument) NumPage() int { return d.pages }

func (d blankDocument) Image(_ int, dpi float64) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, int(8.27*dpi/10), int(11.69*dpi/10))), nil
}

func (d blankDocument) Close() error { return nil }

func newRemote(t *testing.T, srv *testutil.FakeOCRServer) (*RemoteEngine, *ocrapi.Session) {
	t.Helper()
	p := ocrapi.DefaultPolicies()
	p.UploadTimeout = 2 * time.Second
	p.Poll.Timeout = 2 * time.Second
	p.Auth.Timeout = 2 * time.Second

	client := ocrapi.NewClient(ocrapi.Endpoints{
		Login:       srv.Endpoint(testutil.PathLogin),
		Refresh:     srv.Endpoint(testutil.PathRefresh),
		Upload:      srv.Endpoint(testutil.PathUpload),
		OCRByFileID: srv.Endpoint(testutil.PathOCR),
		Field:       srv.Endpoint(testutil.PathField),
	}, ocrapi.WithPolicies(p), ocrapi.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))

	session := ocrapi.NewSession(client, ocrapi.SessionConfig{
		Credentials: ocrapi.Credentials{Username: "ocr", Password: "secret"},
	})
	return NewRemoteEngine(render.NewRenderer(blankRasterizer{pages: 1}, nil), nil), session
}

func outputs(dir string) (string, string) {
	return filepath.Join(dir, "archive.pdf"), filepath.Join(dir, "sidecar.txt")
}

func TestRemoteEngine_PDF(t *testing.T) {
	srv := testutil.NewFakeOCRServer(t)
	engine, session := newRemote(t, srv)
	dir := t.TempDir()
	archive, sidecar := outputs(dir)

	arts, err := engine.Run(context.Background(), Params{
		InputPath:   testutil.WriteScannedPDF(t, dir, "scan.pdf", 1),
		MimeType:    "application/pdf",
		OutputPath:  archive,
		SidecarPath: sidecar,
		Session:     session,
	})
	require.NoError(t, err)

	assert.Equal(t, "42", arts.FileID)
	assert.Equal(t, "req-1", arts.RequestID)
	assert.Empty(t, arts.FormCode)
	assert.True(t, testutil.FileExists(archive))

	content, err := os.ReadFile(sidecar)
	require.NoError(t, err)
	assert.Equal(t, arts.Result.Content, string(content))
}

func TestRemoteEngine_Image(t *testing.T) {
	srv := testutil.NewFakeOCRServer(t)
	engine, session := newRemote(t, srv)
	dir := t.TempDir()
	archive, sidecar := outputs(dir)

	_, err := engine.Run(context.Background(), Params{
		InputPath:   testutil.WritePNG(t, dir, "scan.png", 850, 1100, 300),
		MimeType:    "image/png",
		IsImage:     true,
		OutputPath:  archive,
		SidecarPath: sidecar,
		Session:     session,
	})
	require.NoError(t, err)
	assert.True(t, testutil.FileExists(archive))
	assert.Equal(t, 1, srv.Calls(testutil.PathUpload))
}

func TestRemoteEngine_RejectsBeforeUpload(t *testing.T) {
	dir := t.TempDir()
	garbage, err := testutil.WriteFile(dir, "broken.pdf", "not a pdf at all")
	require.NoError(t, err)
	badImage, err := testutil.WriteFile(dir, "broken.png", "not a png")
	require.NoError(t, err)

	tests := []struct {
		name      string
		params    Params
		encrypted bool
	}{
		{
			name:      "encrypted PDF",
			params:    Params{InputPath: testutil.WriteEncryptedPDF(t, dir, "locked.pdf", testutil.SampleText)},
			encrypted: true,
		},
		{
			name:   "unreadable PDF",
			params: Params{InputPath: garbage},
		},
		{
			name:   "undecodable image",
			params: Params{InputPath: badImage, IsImage: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewFakeOCRServer(t)
			engine, session := newRemote(t, srv)
			tt.params.Session = session
			tt.params.OutputPath, tt.params.SidecarPath = outputs(t.TempDir())

			_, err := engine.Run(context.Background(), tt.params)
			require.Error(t, err)
			if tt.encrypted {
				var enc *EncryptedInputError
				assert.ErrorAs(t, err, &enc)
			} else {
				var in *InputFileError
				assert.ErrorAs(t, err, &in)
			}
			assert.Zero(t, srv.TotalCalls())
		})
	}
}

func TestRemoteEngine_UploadFailureCopiesInput(t *testing.T) {
	srv := testutil.NewFakeOCRServer(t)
	srv.UploadStatuses = []int{http.StatusInternalServerError}
	engine, session := newRemote(t, srv)
	dir := t.TempDir()
	archive, sidecar := outputs(dir)
	input := testutil.WriteScannedPDF(t, dir, "scan.pdf", 1)

	arts, err := engine.Run(context.Background(), Params{
		InputPath:   input,
		OutputPath:  archive,
		SidecarPath: sidecar,
		Session:     session,
	})
	require.NoError(t, err)
	assert.Nil(t, arts.Result)

	want, err := os.ReadFile(input)
	require.NoError(t, err)
	got, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	content, err := os.ReadFile(sidecar)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestRemoteEngine_NoSession(t *testing.T) {
	engine := NewRemoteEngine(nil, nil)
	_, err := engine.Run(context.Background(), Params{InputPath: "x.pdf"})
	assert.ErrorIs(t, err, ErrNoSession)
}
