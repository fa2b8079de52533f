package server

import (
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	apperrors "github.com/jrsteele09/possession-claims-frontend/internal/errors"
)

//go:embed static/*
var staticFiles embed.FS

// assets is the static directory served under /assets/.
var assets = func() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("static assets: " + err.Error())
	}
	return sub
}()

// StreamFile writes the named asset. Names outside the asset directory, or not in it,
// are reported as errors.ErrNotFound.
func StreamFile(w http.ResponseWriter, name string) error {
	if !fs.ValidPath(name) {
		return fmt.Errorf("[StreamFile] %q: %w", name, apperrors.ErrNotFound)
	}
	data, err := fs.ReadFile(assets, name)
	if err != nil {
		if apperrors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("[StreamFile] %s: %w", name, apperrors.ErrNotFound)
		}
		return fmt.Errorf("[StreamFile] %s: %w", name, err)
	}

	w.Header().Set("Content-Type", assetContentType(name, data))
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("[StreamFile] writing %s: %w", name, err)
	}
	return nil
}

func assetContentType(name string, data []byte) string {
	ctype := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(ctype, "charset=") {
		ctype += "; charset=utf-8"
	}
	return ctype
}
