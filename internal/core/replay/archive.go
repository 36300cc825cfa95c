package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/netsync/internal/core/command"
	"github.com/zeusync/netsync/internal/core/wire"
)

const (
	archiveMagic = "NSRA"
	// maxArchiveSize bounds the decompressed log read back into memory.
	maxArchiveSize = 256 << 20
)

var (
	ErrUnknownCompression = errors.New("replay: unknown compression")
	ErrArchiveTooLarge    = errors.New("replay: archive too large")
)

// Compression selects how an archive body is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

func (c Compression) MarshalYAML() (any, error) {
	return c.String(), nil
}

func (c *Compression) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseCompression(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Config controls recording on the client host.
type Config struct {
	Enabled     bool        `yaml:"enabled"`
	Path        string      `yaml:"path"`
	Compression Compression `yaml:"compression"`
}

func DefaultConfig() Config {
	return Config{Path: "session.replay", Compression: CompressionZstd}
}

// WriteArchive writes the serialized log of rec to dst, prefixed with a
// magic and the compression byte.
func WriteArchive(dst io.Writer, rec *Recorder, compression Compression) error {
	w := wire.AcquireWriter()
	defer wire.ReleaseWriter(w)
	rec.Serialize(w)

	if _, err := io.WriteString(dst, archiveMagic); err != nil {
		return err
	}
	if _, err := dst.Write([]byte{byte(compression)}); err != nil {
		return err
	}

	switch compression {
	case CompressionNone:
		_, err := dst.Write(w.Bytes())
		return err
	case CompressionSnappy:
		sw := snappy.NewBufferedWriter(dst)
		if _, err := sw.Write(w.Bytes()); err != nil {
			_ = sw.Close()
			return err
		}
		return sw.Close()
	case CompressionZstd:
		zw, err := zstd.NewWriter(dst)
		if err != nil {
			return err
		}
		if _, err = zw.Write(w.Bytes()); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCompression, compression)
	}
}

// ReadArchive reads an archive written by WriteArchive.
func ReadArchive(src io.Reader, registry *command.Registry) (*Recorder, error) {
	br := bufio.NewReader(src)
	header := make([]byte, len(archiveMagic)+1)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("replay archive header: %w", err)
	}
	if string(header[:len(archiveMagic)]) != archiveMagic {
		return nil, ErrBadMagic
	}

	var body io.Reader
	switch compression := Compression(header[len(archiveMagic)]); compression {
	case CompressionNone:
		body = br
	case CompressionSnappy:
		body = snappy.NewReader(br)
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		body = zr
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, compression)
	}

	data, err := io.ReadAll(io.LimitReader(body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("replay archive body: %w", err)
	}
	if len(data) > maxArchiveSize {
		return nil, ErrArchiveTooLarge
	}

	rec := NewRecorder(registry)
	if err = rec.Deserialize(wire.NewReader(data)); err != nil {
		return nil, err
	}
	return rec, nil
}
