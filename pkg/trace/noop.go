//go:build !tracing

package trace

// Enabled reports whether this binary was built with the tracing tag.
const Enabled = false

// NewFileExporter returns a no-op exporter when tracing is disabled.
// The signature matches the tracing build.
func NewFileExporter(filePath string, opts ...FileExporterOption) (Exporter, error) {
	return &NoopExporter{}, nil
}
