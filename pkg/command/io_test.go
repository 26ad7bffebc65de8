package command

import (
	"testing"

	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

func TestStreamWriterIncremental(t *testing.T) {
	ch := make(chan botcore.StreamChunk, 10)
	w := NewStreamWriter(ch)

	if _, err := w.Write([]byte("Mode: ")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := w.Write([]byte("rag")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n, _ := w.Write(nil); n != 0 {
		t.Fatalf("empty write should be dropped, wrote %d", n)
	}

	chunk1 := <-ch
	if chunk1.Content != "Mode: " || chunk1.IsFinal {
		t.Errorf("unexpected first chunk %+v", chunk1)
	}

	// 第二个片段只包含增量内容
	chunk2 := <-ch
	if chunk2.Content != "rag" {
		t.Errorf("Expected second chunk 'rag' (incremental), got '%s'", chunk2.Content)
	}

	select {
	case extra := <-ch:
		t.Fatalf("unexpected chunk %+v", extra)
	default:
	}
}
