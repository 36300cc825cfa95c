// Package quic carries protocol messages over one bidirectional QUIC stream
// per connection, each message framed with a 4-byte big-endian length.
package quic

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/netsync/internal/core/protocol"
)

type Config struct {
	MaxMessageSize  uint32        `yaml:"max_message_size"`
	MaxIdleTimeout  time.Duration `yaml:"max_idle_timeout"`
	KeepAlivePeriod time.Duration `yaml:"keep_alive_period"`
	NextProto       string        `yaml:"next_proto"`
	// CertFile and KeyFile select the server certificate. When empty a
	// self-signed certificate is generated.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// InsecureSkipVerify disables server certificate checks on the client.
	// For development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// DefaultConfig returns default QUIC transport configuration
func DefaultConfig() Config {
	return Config{
		MaxMessageSize:  1024 * 1024, // 1MB
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
		NextProto:       "netsync",
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  c.MaxIdleTimeout,
		KeepAlivePeriod: c.KeepAlivePeriod,
	}
}

func (c Config) serverTLS() (*tls.Config, error) {
	if c.CertFile == "" {
		return GenerateSelfSignedTLS(c.NextProto)
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{c.NextProto},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (c Config) clientTLS() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify,
		NextProtos:         []string{c.NextProto},
		MinVersion:         tls.VersionTLS13,
	}
}

// GenerateSelfSignedTLS generates a self-signed TLS certificate for development
func GenerateSelfSignedTLS(nextProto string) (*tls.Config, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"netsync"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{certDER}, PrivateKey: privateKey}},
		NextProtos:   []string{nextProto},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

const frameHeaderSize = 4

func writeFrame(w io.Writer, data []byte) error {
	frame := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderSize:], data)
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if maxSize > 0 && size > maxSize {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeMessageTooLarge,
			fmt.Sprintf("frame of %d bytes exceeds %d", size, maxSize), protocol.ErrMessageTooLarge)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
