package source

import (
	"bytes"
	"path"
	"strings"

	"github.com/h2non/filetype"
)

const sniffLen = 8000

var binaryExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".ico": {}, ".bmp": {}, ".avif": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	".mp3": {}, ".mp4": {}, ".mov": {}, ".webm": {}, ".wav": {}, ".ogg": {},
	".wasm": {}, ".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".a": {}, ".o": {},
	".jar": {}, ".class": {}, ".pyc": {}, ".bin": {}, ".dat": {}, ".psd": {}, ".sqlite": {}, ".db": {},
}

var textExts = map[string]struct{}{
	".js": {}, ".jsx": {}, ".mjs": {}, ".cjs": {}, ".ts": {}, ".tsx": {}, ".go": {}, ".py": {},
	".rb": {}, ".java": {}, ".kt": {}, ".rs": {}, ".php": {}, ".cs": {}, ".c": {}, ".h": {}, ".cpp": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".md": {}, ".txt": {}, ".html": {}, ".css": {},
	".scss": {}, ".sql": {}, ".prisma": {}, ".graphql": {}, ".sh": {}, ".env": {}, ".xml": {}, ".svg": {},
	".vue": {}, ".svelte": {}, ".astro": {}, ".mdx": {},
}

// IsBinary classifies a file from its extension and the leading bytes of its content.
func IsBinary(rel string, content []byte) bool {
	ext := strings.ToLower(path.Ext(rel))
	if _, ok := binaryExts[ext]; ok {
		return true
	}
	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if _, ok := textExts[ext]; ok {
		return bytes.IndexByte(head, 0) >= 0
	}
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		mime := kind.MIME.Value
		if !strings.HasPrefix(mime, "text/") && !strings.Contains(mime, "json") && !strings.Contains(mime, "xml") {
			return true
		}
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	return controlRatio(head) > 0.3
}

func controlRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	n := 0
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' && c != '\f' {
			n++
		}
	}
	return float64(n) / float64(len(b))
}
