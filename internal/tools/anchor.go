package tools

// Anchor defaults applied when the caller leaves a field out.
const (
	defaultDiffType = "EFFECTIVE"
	defaultLineType = "CONTEXT"
	defaultFileType = "TO"
)

// CommentAnchor attaches a pull request comment to one line of a file in the diff.
// FromHash and ToHash are omitted from the wire form unless the caller set them.
type CommentAnchor struct {
	DiffType string `json:"diffType"`
	Line     int64  `json:"line"`
	LineType string `json:"lineType"`
	FileType string `json:"fileType"`
	Path     string `json:"path"`
	SrcPath  string `json:"srcPath"`
	FromHash string `json:"fromHash,omitempty"`
	ToHash   string `json:"toHash,omitempty"`
}

// buildAnchor returns nil for a plain comment (no filePath). A filePath
// without a lineNumber is rejected rather than silently dropped. Anchor
// fields are type-checked even when no filePath is given.
func buildAnchor(a args) (*CommentAnchor, error) {
	path, errPath := a.optionalString("filePath")
	line, errLine := a.optionalInt64("lineNumber")
	diffType, errDiff := a.optionalEnum("diffType", diffTypes)
	lineType, errLineType := a.optionalEnum("lineType", lineTypes)
	fileType, errFile := a.optionalEnum("fileType", fileTypes)
	fromHash, errFrom := a.optionalString("fromHash")
	toHash, errTo := a.optionalString("toHash")
	if err := firstErr(errPath, errLine, errDiff, errLineType, errFile, errFrom, errTo); err != nil {
		return nil, invalidParams("%v", err)
	}

	if path == nil || *path == "" {
		return nil, nil
	}
	if line == nil {
		return nil, invalidParams("lineNumber is required when filePath is provided")
	}

	anchor := &CommentAnchor{
		DiffType: valueOr(diffType, defaultDiffType),
		Line:     *line,
		LineType: valueOr(lineType, defaultLineType),
		FileType: valueOr(fileType, defaultFileType),
		Path:     *path,
		SrcPath:  *path,
	}
	// An empty hash is treated as not supplied and left off the wire.
	if fromHash != nil {
		anchor.FromHash = *fromHash
	}
	if toHash != nil {
		anchor.ToHash = *toHash
	}
	return anchor, nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
