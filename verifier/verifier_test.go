package verifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// verifyFunc plays the remote verifier: it sees the reassembled receipt.
type verifyFunc func(receipt []byte) (*VerifyResponse, error)

func registerVerifier(s *grpc.Server, verify verifyFunc, chunkSizes *[]int) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "VerifyReceiptStream",
			ClientStreams: true,
			Handler: func(_ any, stream grpc.ServerStream) error {
				var receipt bytes.Buffer
				for {
					chunk := new(BytesChunk)
					err := stream.RecvMsg(chunk)
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						return err
					}
					if chunkSizes != nil {
						*chunkSizes = append(*chunkSizes, len(chunk.Data))
					}
					receipt.Write(chunk.Data)
				}
				resp, err := verify(receipt.Bytes())
				if err != nil {
					return err
				}
				return stream.SendMsg(resp)
			},
		}},
		Metadata: "receipt_verifier.proto",
	}, struct{}{})
}

func startVerifier(t *testing.T, verify verifyFunc, chunkSizes *[]int) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(Codec()))
	registerVerifier(srv, verify, chunkSizes)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func digestVerifier(expected []byte) verifyFunc {
	want := sha256.Sum256(expected)
	return func(receipt []byte) (*VerifyResponse, error) {
		got := sha256.Sum256(receipt)
		if got != want {
			return &VerifyResponse{Valid: false, Message: "digest mismatch"}, nil
		}
		journal := hex.EncodeToString(got[:8])
		return &VerifyResponse{Valid: true, Message: "receipt verified", JournalValue: &journal}, nil
	}
}

func TestVerifyStreamsReceiptInChunks(t *testing.T) {
	receipt := bytes.Repeat([]byte("0123456789abcdef"), 700) // 11200 bytes
	var sizes []int
	conn := startVerifier(t, digestVerifier(receipt), &sizes)

	c := NewClient(conn, cmtlog.NewNopLogger(), WithChunkSize(4096))
	res, err := c.Verify(context.Background(), bytes.NewReader(receipt))
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "receipt verified", res.Message)
	require.NotNil(t, res.JournalValue)
	require.Equal(t, []int{4096, 4096, 3008}, sizes)
}

func TestVerifyFileWithDefaultChunkSize(t *testing.T) {
	receipt := bytes.Repeat([]byte{0xAB}, DefaultChunkSize+1234)
	path := filepath.Join(t.TempDir(), "receipt.bin")
	require.NoError(t, os.WriteFile(path, receipt, 0o600))

	var sizes []int
	conn := startVerifier(t, digestVerifier(receipt), &sizes)
	res, err := NewClient(conn, cmtlog.NewNopLogger()).VerifyFile(context.Background(), path)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, []int{DefaultChunkSize, 1234}, sizes)
}

func TestVerifyReportsInvalidReceipt(t *testing.T) {
	conn := startVerifier(t, digestVerifier([]byte("expected")), nil)
	res, err := NewClient(conn, cmtlog.NewNopLogger()).Verify(context.Background(), bytes.NewReader([]byte("forged")))
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Equal(t, "digest mismatch", res.Message)
	require.Nil(t, res.JournalValue)
}

func TestVerifyPropagatesRPCStatus(t *testing.T) {
	conn := startVerifier(t, func([]byte) (*VerifyResponse, error) {
		return nil, status.Error(codes.InvalidArgument, "receipt is not a RISC Zero receipt")
	}, nil)

	_, err := NewClient(conn, cmtlog.NewNopLogger()).Verify(context.Background(), bytes.NewReader([]byte("x")))
	require.Error(t, err)
	require.Equal(t, apperr.KindNetwork, apperr.KindOf(err))
	require.Contains(t, err.Error(), "InvalidArgument")
	require.Contains(t, err.Error(), "not a RISC Zero receipt")
}

func TestVerifyUnknownMethod(t *testing.T) {
	conn := startVerifier(t, digestVerifier(nil), nil)
	_, err := NewClient(conn, cmtlog.NewNopLogger(), WithMethod("/receipt_verifier.ReceiptVerifierService/Nope")).
		Verify(context.Background(), bytes.NewReader([]byte("x")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unimplemented")
}

func TestVerifyAbortsOnReadError(t *testing.T) {
	conn := startVerifier(t, digestVerifier(nil), nil)
	broken := io.MultiReader(bytes.NewReader(make([]byte, 5000)), iotest.ErrReader(errors.New("disk gone")))

	_, err := NewClient(conn, cmtlog.NewNopLogger(), WithChunkSize(1024)).Verify(context.Background(), broken)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk gone")
}

func TestVerifyDeadlineIsTimeout(t *testing.T) {
	conn := startVerifier(t, func([]byte) (*VerifyResponse, error) {
		time.Sleep(500 * time.Millisecond)
		return &VerifyResponse{Valid: true}, nil
	}, nil)

	_, err := NewClient(conn, cmtlog.NewNopLogger(), WithTimeout(50*time.Millisecond)).
		Verify(context.Background(), bytes.NewReader([]byte("x")))
	require.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	require.True(t, apperr.IsRetryable(err))
}

func TestVerifyFileMissing(t *testing.T) {
	c := NewClient(nil, cmtlog.NewNopLogger())
	_, err := c.VerifyFile(context.Background(), filepath.Join(t.TempDir(), "absent.bin"))
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestStreamChunksHoldsAtMostOneChunk(t *testing.T) {
	const chunkSize = 1000
	src := &countingReader{r: iotest.HalfReader(bytes.NewReader(make([]byte, 12345)))}
	sent := 0

	err := streamChunks(src, chunkSize, func(chunk *BytesChunk) error {
		require.LessOrEqual(t, len(chunk.Data), chunkSize)
		sent += len(chunk.Data)
		require.LessOrEqual(t, src.read-sent, chunkSize)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 12345, sent)
}

func TestStreamChunksStopsOnSendError(t *testing.T) {
	calls := 0
	err := streamChunks(bytes.NewReader(make([]byte, 10)), 3, func(*BytesChunk) error {
		calls++
		return io.EOF
	})
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 1, calls)
}

func TestCodecRoundTrip(t *testing.T) {
	journal := "42"
	in := &VerifyResponse{Valid: true, Message: "ok", JournalValue: &journal}
	raw, err := Codec().Marshal(in)
	require.NoError(t, err)

	var out VerifyResponse
	require.NoError(t, Codec().Unmarshal(raw, &out))
	require.Equal(t, *in, out)

	chunk := &BytesChunk{Data: []byte{1, 2, 3}}
	raw, err = Codec().Marshal(chunk)
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x03, 1, 2, 3}, raw)

	_, err = Codec().Marshal("not a message")
	require.Error(t, err)
	require.Error(t, Codec().Unmarshal([]byte{0x0a, 0x05, 1}, &BytesChunk{}))
}
