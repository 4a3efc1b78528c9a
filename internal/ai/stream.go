package ai

import "context"

// ChunkSize is the number of characters per streamed slice.
const ChunkSize = 10

// Chunk is one piece of a streamed answer. The final chunk has Done set and
// carries the token estimate.
type Chunk struct {
	Content string
	Tokens  int
	Done    bool
	Err     error
}

// Streamer emits an answer incrementally.
type Streamer interface {
	ChatWithStreaming(ctx context.Context, req Request) <-chan Chunk
}

// PseudoStreamer obtains the complete answer from a Responder and re-emits
// it in fixed-size slices. Nothing is sent before the upstream call returns.
type PseudoStreamer struct {
	Responder Responder
	ChunkSize int
}

var _ Streamer = (*PseudoStreamer)(nil)

func NewPseudoStreamer(r Responder) *PseudoStreamer {
	return &PseudoStreamer{Responder: r, ChunkSize: ChunkSize}
}

func (s *PseudoStreamer) ChatWithStreaming(ctx context.Context, req Request) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)

		text, tokens := s.Responder.GetResponse(ctx, req)

		send := func(c Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, piece := range Split(text, s.size()) {
			if ctx.Err() != nil {
				send(Chunk{Err: ctx.Err()})
				return
			}
			if !send(Chunk{Content: piece}) {
				return
			}
		}
		send(Chunk{Done: true, Tokens: tokens})
	}()
	return out
}

func (s *PseudoStreamer) size() int {
	if s.ChunkSize <= 0 {
		return ChunkSize
	}
	return s.ChunkSize
}

// Split cuts text into slices of at most size characters.
func Split(text string, size int) []string {
	runes := []rune(text)
	var pieces []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
	}
	return pieces
}
