package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/allocator/internal/work"
)

const streamWriteTimeout = 5 * time.Second

// handleJobStream upgrades GET /api/jobs/{id}/stream to a websocket and
// sends the job status on every state or phase change. The socket is
// closed after the terminal status.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := s.log.With().Str("job_id", id).Logger()

	// Subscribe before the first read so no update falls between them.
	updates, cancel := s.jobs.Events().Subscribe(id)
	defer cancel()

	st, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, work.ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("Failed to load job")
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Clients never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())

	if err := s.sendStatus(ctx, conn, st); err != nil {
		return
	}

	for !st.State.Terminal() {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-updates:
			if !ok {
				// Closed on a terminal record, which may have been dropped
				// on a full buffer; the store has the final state.
				if st, err = s.jobs.Get(ctx, id); err != nil {
					log.Warn().Err(err).Msg("Failed to load final job state")
					return
				}
				if err := s.sendStatus(ctx, conn, st); err != nil {
					return
				}
				conn.Close(websocket.StatusNormalClosure, string(st.State))
				return
			}
			next := work.StatusOf(&rec)
			st = &next
			if err := s.sendStatus(ctx, conn, st); err != nil {
				return
			}
		}
	}

	conn.Close(websocket.StatusNormalClosure, string(st.State))
}

func (s *Server) sendStatus(ctx context.Context, conn *websocket.Conn, st *work.Status) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, st); err != nil {
		s.log.Debug().Err(err).Str("job_id", st.ID).Msg("Job stream write failed")
		return err
	}
	return nil
}
