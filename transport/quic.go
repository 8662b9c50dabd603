package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	quic "github.com/quic-go/quic-go"

	"github.com/vnetkit/rtnl/internal/worker"
)

// QUICTransport relays each client's datagrams to a single remote peer
// over a QUIC stream, one stream per client. It is the reference
// remote-host Transport: the real deployment replaces it with whatever
// actually reaches the kernel/peer, this one reaches across a network.
type QUICTransport struct {
	worker.Worker

	log *log.Logger

	remoteAddr string
	tlsConf    *tls.Config
	qcfg       *quic.Config

	mu       sync.Mutex
	sessions map[net.Conn]quic.Connection
	controls map[net.Conn]bool
}

// NewQUIC returns a QUICTransport that dials remoteAddr lazily, once per
// client connection, the first time AddClient is called for it.
func NewQUIC(remoteAddr string, logger *log.Logger) *QUICTransport {
	if logger == nil {
		logger = log.Default().WithPrefix("transport.quic")
	}
	return &QUICTransport{
		log:        logger,
		remoteAddr: remoteAddr,
		tlsConf:    generateTLSConfig(),
		qcfg:       &quic.Config{KeepAlivePeriod: 15 * time.Second},
		sessions:   make(map[net.Conn]quic.Connection),
		controls:   make(map[net.Conn]bool),
	}
}

func (q *QUICTransport) NewPair() (net.Conn, net.Conn, error) {
	client, host := net.Pipe()
	return client, host, nil
}

// AddClient dials the remote peer and starts a goroutine that pumps
// bytes bidirectionally between host and the opened QUIC stream, until
// either side closes or the transport halts.
func (q *QUICTransport) AddClient(host net.Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout())
	defer cancel()

	conn, err := quic.DialAddr(ctx, q.remoteAddr, q.tlsConf, q.qcfg)
	if err != nil {
		return fmt.Errorf("transport: quic dial %s: %w", q.remoteAddr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("transport: quic open stream: %w", err)
	}

	q.mu.Lock()
	q.sessions[host] = conn
	q.mu.Unlock()

	q.Go(func() { q.pump(host, stream) })
	return nil
}

func (q *QUICTransport) pump(host net.Conn, stream quic.Stream) {
	errCh := make(chan error, 2)
	go func() {
		_, err := copyBuf(stream, host)
		errCh <- err
	}()
	go func() {
		_, err := copyBuf(host, stream)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			q.log.Debugf("quic bridge pump ended: %v", err)
		}
	case <-q.HaltCh():
	}
	host.Close()
	stream.Close()
}

func copyBuf(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			return total, err
		}
	}
}

func (q *QUICTransport) SetControl(host net.Conn) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.sessions[host]; !ok {
		return ErrNotControl
	}
	q.controls[host] = true
	return nil
}

func (q *QUICTransport) Reload() error { return nil }

func (q *QUICTransport) Start() error { return nil }

func (q *QUICTransport) Stop() error {
	q.Halt()
	q.mu.Lock()
	defer q.mu.Unlock()
	for host, conn := range q.sessions {
		host.Close()
		conn.CloseWithError(0, "shutdown")
	}
	q.sessions = make(map[net.Conn]quic.Connection)
	return nil
}

func connectTimeout() time.Duration { return 15 * time.Second }

// generateTLSConfig builds a throwaway self-signed cert, matching the
// common QUIC-demo pattern of authenticating the transport session out
// of band rather than via the web PKI.
func generateTLSConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		panic(err)
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		InsecureSkipVerify: true,
		NextProtos:         []string{"rtnl"},
	}
}
