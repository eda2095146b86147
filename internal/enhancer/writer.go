package enhancer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/classfile"
	"github.com/olehluchkiv/enhancer/internal/classpath"
)

const stateVersion = 1

// Writer serializes enhanced classes under an output directory, laid out
// by package.
type Writer struct {
	outputDir    string
	conv         analyzer.Conventions
	tagInterface bool
	logger       *slog.Logger
}

// NewWriter creates a writer. With tagInterface set the enhanced marker is
// added to the class's interfaces in addition to the state attribute.
func NewWriter(outputDir string, conv analyzer.Conventions, tagInterface bool, logger *slog.Logger) *Writer {
	return &Writer{outputDir: outputDir, conv: conv, tagInterface: tagInterface, logger: logger}
}

// Path returns the file a class is written to.
func (w *Writer) Path(c *classpath.Class) string {
	return filepath.Join(w.outputDir, filepath.FromSlash(classpath.ClassResource(c.InternalName())))
}

// Write marks c as enhanced, encodes it and replaces the output file. It
// returns the path written and the hex SHA-256 of the bytes.
func (w *Writer) Write(c *classpath.Class) (string, string, error) {
	c.File.SetAttribute(analyzer.StateAttribute, stateAttribute(c.Digest))
	if w.tagInterface {
		c.File.AddInterface(classfile.InternalName(w.conv.EnhancedMarker))
	}
	data, err := c.File.Bytes()
	if err != nil {
		return "", "", newError(MalformedClass, c.Name, "class could not be encoded", err)
	}

	path := w.Path(c)
	if err := writeFileAtomic(path, data); err != nil {
		return "", "", newError(IOFailure, c.Name, "class could not be written", err)
	}
	sum := sha256.Sum256(data)
	w.logger.Debug("class written", "class", c.Name, "path", path, "bytes", len(data))
	return path, hex.EncodeToString(sum[:]), nil
}

// stateAttribute is a format byte followed by the raw digest of the class
// as it was before enhancement.
func stateAttribute(inputDigest string) []byte {
	out := []byte{stateVersion}
	if raw, err := hex.DecodeString(inputDigest); err == nil {
		out = append(out, raw...)
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
