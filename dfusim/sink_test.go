package dfusim

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/moffa90/go-nrfdfu/protocol"
)

func TestSinkWriteChecks(t *testing.T) {
	ctx := context.Background()
	data := []byte{1, 2, 3, 4}

	tests := []struct {
		name    string
		offset  uint32
		crc     uint32
		wantErr error
	}{
		{name: "valid", offset: 0, crc: 0},
		{name: "wrong offset", offset: 2, crc: 0, wantErr: protocol.ErrUnexpectedBytes},
		{name: "wrong crc", offset: 0, crc: 0xDEADBEEF, wantErr: protocol.ErrMismatchedCRC32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSink()
			if err := s.CreateObject(ctx, protocol.ObjectData, 4); err != nil {
				t.Fatalf("CreateObject: %v", err)
			}

			sum, err := s.WriteObject(ctx, data, tt.crc, tt.offset)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteObject: %v", err)
			}
			if want := (protocol.Checksum{Offset: 4, CRC: protocol.CRC32(data)}); sum != want {
				t.Errorf("WriteObject = %+v, want %+v", sum, want)
			}
		})
	}
}

func TestSinkWriteWithoutObject(t *testing.T) {
	s := NewSink()
	_, err := s.WriteObject(context.Background(), []byte{1}, 0, 0)
	if !errors.Is(err, protocol.ErrMustHavePayload) {
		t.Fatalf("error = %v, want ErrMustHavePayload", err)
	}
}

func TestSinkCreateTruncatesToExecuted(t *testing.T) {
	ctx := context.Background()
	s := NewSink(WithMaxObjectSize(protocol.ObjectData, 4))
	s.Preload(protocol.ObjectData, []byte{1, 2, 3, 4, 5, 6}, 4)

	if err := s.CreateObject(ctx, protocol.ObjectData, 4); err != nil {
		t.Fatalf("CreateObject: %v", err)
	}
	if got := s.Data(protocol.ObjectData); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("data = % X, want the executed prefix", got)
	}
	if err := s.CreateObject(ctx, protocol.ObjectData, 5); !errors.Is(err, protocol.ErrMoreBytesThanChunk) {
		t.Errorf("oversized create error = %v, want ErrMoreBytesThanChunk", err)
	}
}

func TestSinkNewInitCommandDropsImage(t *testing.T) {
	ctx := context.Background()
	s := NewSink()
	s.Preload(protocol.ObjectCommand, []byte("old"), 3)
	s.Preload(protocol.ObjectData, []byte("image"), 5)

	send := func(cmd string) {
		t.Helper()
		if err := s.CreateObject(ctx, protocol.ObjectCommand, uint32(len(cmd))); err != nil {
			t.Fatalf("CreateObject: %v", err)
		}
		if _, err := s.WriteObject(ctx, []byte(cmd), 0, 0); err != nil {
			t.Fatalf("WriteObject: %v", err)
		}
		if err := s.ExecuteObject(ctx); err != nil {
			t.Fatalf("ExecuteObject: %v", err)
		}
	}

	// Re-executing the stored command keeps the image.
	if _, err := s.SelectObject(ctx, protocol.ObjectCommand); err != nil {
		t.Fatalf("SelectObject: %v", err)
	}
	if err := s.ExecuteObject(ctx); err != nil {
		t.Fatalf("ExecuteObject: %v", err)
	}
	if got := s.Executed(protocol.ObjectData); got != 5 {
		t.Fatalf("executed data = %d, want 5", got)
	}

	send("new")
	if got := s.Data(protocol.ObjectData); len(got) != 0 {
		t.Errorf("data after new init command = %q, want empty", got)
	}
	if s.Count(protocol.OpExecute) != 2 {
		t.Errorf("executes = %d, want 2", s.Count(protocol.OpExecute))
	}
}

func TestSinkCorruptChecksums(t *testing.T) {
	ctx := context.Background()
	s := NewSink()
	s.Preload(protocol.ObjectData, []byte("abcd"), 4)
	if _, err := s.SelectObject(ctx, protocol.ObjectData); err != nil {
		t.Fatalf("SelectObject: %v", err)
	}
	s.CorruptChecksums(1)

	want := protocol.CRC32([]byte("abcd"))
	first, _ := s.ChecksumObject(ctx, 4, want)
	second, _ := s.ChecksumObject(ctx, 4, want)

	if first.CRC == want {
		t.Error("first checksum was not corrupted")
	}
	if second.CRC != want {
		t.Errorf("second checksum = 0x%08X, want 0x%08X", second.CRC, want)
	}
}
