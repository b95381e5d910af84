package smp

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
)

func TestUploadFileReassemblesFullPayload(t *testing.T) {
	data := make([]byte, 1500)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("generate data: %s", err.Error())
	}

	var uploaded []byte
	transport := &fakeTransport{
		sendFn: func(ctx context.Context, frame SMPFrame) (SMPFrame, error) {
			var req FileUploadRequest
			if err := DecodeCBOR(frame.Data, &req); err != nil {
				t.Fatalf("decode request: %s", err.Error())
			}

			if req.Name != "/lfs/new.bin" {
				t.Fatalf("unexpected file name: %q", req.Name)
			}

			uploaded = append(uploaded, req.Data...)

			respData, _ := EncodeCBOR(FileUploadResponse{Off: uint32(len(uploaded))})
			return SMPFrame{Header: SMPHeader{SequenceNum: frame.Header.SequenceNum, DataLength: uint16(len(respData))}, Data: respData}, nil
		},
	}

	client := NewClient(transport)
	err := client.UploadFile(context.Background(), "/lfs/new.bin", data, 80, nil)
	if err != nil {
		t.Fatalf("upload file: %s", err.Error())
	}

	if !bytes.Equal(uploaded, data) {
		t.Fatalf("uploaded data does not match source")
	}
}

func TestUploadFileEmptyFile(t *testing.T) {
	var requestCount int
	transport := &fakeTransport{
		sendFn: func(ctx context.Context, frame SMPFrame) (SMPFrame, error) {
			requestCount++
			respData, _ := EncodeCBOR(FileUploadResponse{Off: 0})
			return SMPFrame{Header: SMPHeader{SequenceNum: frame.Header.SequenceNum, DataLength: uint16(len(respData))}, Data: respData}, nil
		},
	}

	client := NewClient(transport)
	if err := client.UploadFile(context.Background(), "/lfs/empty.bin", nil, 80, nil); err != nil {
		t.Fatalf("upload empty file: %s", err.Error())
	}

	if requestCount != 1 {
		t.Fatalf("expected exactly one request for an empty file, got %d", requestCount)
	}
}

func TestDownloadFileReassemblesFullPayload(t *testing.T) {
	want := make([]byte, 1200)
	if _, err := rand.Read(want); err != nil {
		t.Fatalf("generate data: %s", err.Error())
	}

	const chunkSize = 30
	transport := &fakeTransport{
		sendFn: func(ctx context.Context, frame SMPFrame) (SMPFrame, error) {
			var req FileDownloadRequest
			if err := DecodeCBOR(frame.Data, &req); err != nil {
				t.Fatalf("decode request: %s", err.Error())
			}

			end := req.Off + chunkSize
			if end > uint32(len(want)) {
				end = uint32(len(want))
			}

			resp := FileDownloadResponse{Off: req.Off, Data: want[req.Off:end]}
			if req.Off == 0 {
				total := uint32(len(want))
				resp.Len = &total
			}

			respData, _ := EncodeCBOR(resp)
			return SMPFrame{Header: SMPHeader{SequenceNum: frame.Header.SequenceNum, DataLength: uint16(len(respData))}, Data: respData}, nil
		},
	}

	client := NewClient(transport)
	got, err := client.DownloadFile(context.Background(), "/lfs/existing.bin", 80, nil)
	if err != nil {
		t.Fatalf("download file: %s", err.Error())
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("downloaded data does not match source")
	}
}

func TestDownloadFileMissingLengthOnFirstChunk(t *testing.T) {
	transport := &fakeTransport{
		sendFn: func(ctx context.Context, frame SMPFrame) (SMPFrame, error) {
			respData, _ := EncodeCBOR(FileDownloadResponse{Off: 0, Data: []byte{1, 2, 3}})
			return SMPFrame{Header: SMPHeader{SequenceNum: frame.Header.SequenceNum, DataLength: uint16(len(respData))}, Data: respData}, nil
		},
	}

	client := NewClient(transport)
	_, err := client.DownloadFile(context.Background(), "/lfs/existing.bin", 80, nil)
	if err == nil {
		t.Fatalf("expected missing-length error")
	}
}
