// Package verifier streams proof receipt files to the remote receipt
// verifier over a gRPC client-streaming call and reports its verdict.
package verifier

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/metrics"
	"github.com/cockroachdb/errors"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// DefaultChunkSize is the slice size of a streamed receipt.
const DefaultChunkSize = 3 * 1024 * 1024

// DefaultMethod is the fully qualified verification RPC.
const DefaultMethod = "/receipt_verifier.ReceiptVerifierService/VerifyReceiptStream"

const serviceName = "receipt_verifier.ReceiptVerifierService"

var verifyStreamDesc = grpc.StreamDesc{
	StreamName:    "VerifyReceiptStream",
	ClientStreams: true,
}

// Result is the verdict on one receipt.
type Result struct {
	Valid        bool    `json:"valid"`
	Message      string  `json:"message"`
	JournalValue *string `json:"journal_value,omitempty"`
}

// Client talks to a receipt verifier.
type Client struct {
	conn      grpc.ClientConnInterface
	closer    io.Closer
	method    string
	chunkSize int
	timeout   time.Duration
	logger    cmtlog.Logger
	metrics   *metrics.Metrics
}

// Option tunes a Client.
type Option func(*Client)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithMethod overrides DefaultMethod.
func WithMethod(method string) Option {
	return func(c *Client) {
		if method != "" {
			c.method = method
		}
	}
}

// WithTimeout bounds each verification call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMetrics records streamed chunks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Dial opens a plaintext connection to address. The connection is lazy;
// nothing is sent until the first verification.
func Dial(address string, logger cmtlog.Logger, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, apperr.Network("VERIFIER_DIAL_FAILED", "Failed to create verifier connection", err)
	}
	c := NewClient(conn, logger, opts...)
	c.closer = conn
	return c, nil
}

// NewClient wraps an existing connection. The caller keeps ownership of conn.
func NewClient(conn grpc.ClientConnInterface, logger cmtlog.Logger, opts ...Option) *Client {
	c := &Client{
		conn:      conn,
		method:    DefaultMethod,
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// VerifyFile streams the file at path.
func (c *Client) VerifyFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Validation("RECEIPT_UNREADABLE", "Failed to open receipt file", err)
	}
	defer f.Close()

	c.logger.Info("Verifying receipt", "path", path)
	return c.Verify(ctx, f)
}

// Verify streams r in chunks and returns the verifier's verdict. At most
// one chunk is held in memory at a time. A read error aborts the stream.
func (c *Client) Verify(ctx context.Context, r io.Reader) (*Result, error) {
	var cancel context.CancelFunc
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &verifyStreamDesc, c.method, grpc.ForceCodec(Codec()))
	if err != nil {
		return nil, rpcError(err)
	}

	chunks := 0
	sendErr := streamChunks(r, c.chunkSize, func(chunk *BytesChunk) error {
		chunks++
		c.metrics.ObserveChunk(len(chunk.Data))
		return stream.SendMsg(chunk)
	})
	switch {
	case errors.Is(sendErr, io.EOF):
		// server closed the stream early; its status is reported by RecvMsg
	case sendErr != nil:
		cancel()
		if apperr.KindOf(sendErr) != apperr.KindInternal {
			return nil, sendErr
		}
		return nil, apperr.Internal("RECEIPT_READ_FAILED", "Failed to read receipt", sendErr)
	default:
		if err := stream.CloseSend(); err != nil {
			return nil, rpcError(err)
		}
	}

	var resp VerifyResponse
	if err := stream.RecvMsg(&resp); err != nil {
		return nil, rpcError(err)
	}
	c.logger.Info("Receipt verification finished", "valid", resp.Valid, "chunks", chunks)

	return &Result{Valid: resp.Valid, Message: resp.Message, JournalValue: resp.JournalValue}, nil
}

type readError struct{ err error }

func (e *readError) Error() string { return "read receipt: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// streamChunks reads r into a single reusable buffer and hands each filled
// slice to send. The buffer is never larger than chunkSize.
func streamChunks(r io.Reader, chunkSize int, send func(*BytesChunk) error) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if sendErr := send(&BytesChunk{Data: buf[:n]}); sendErr != nil {
				return sendErr
			}
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return &readError{err: err}
		}
	}
}

func rpcError(err error) error {
	st := status.Convert(err)
	switch st.Code() {
	case codes.DeadlineExceeded:
		return apperr.Timeout("VERIFIER_DEADLINE", "Verifier did not answer in time", nil).
			WithDetail("%s: %s", st.Code(), st.Message())
	case codes.Canceled:
		return apperr.Network("VERIFIER_CANCELED", "Verification was canceled", nil).
			WithDetail("%s: %s", st.Code(), st.Message())
	default:
		return apperr.Network("VERIFIER_RPC_FAILED", "Verifier call failed", nil).
			WithDetail("%s: %s", st.Code(), st.Message())
	}
}
