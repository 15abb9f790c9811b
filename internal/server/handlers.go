package server

import (
	"bufio"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-basler/internal/camera"
	"github.com/teslashibe/go-basler/internal/hub"
	"github.com/teslashibe/go-basler/pkg/basler"
)

const mjpegBoundary = "frame"

// Status is the body of GET /api/status.
type Status struct {
	Camera    basler.Stats   `json:"camera"`
	Options   map[string]any `json:"options"`
	Viewers   int            `json:"viewers"`
	LastFrame string         `json:"last_frame,omitempty"`
	FrameSeq  uint64         `json:"frame_seq"`
}

func (s *Server) statusSnapshot() Status {
	st := Status{
		Camera:  s.Stats(),
		Options: s.manager.OptionsJSON(),
		Viewers: s.frames.ClientCount(),
	}
	if f := s.latest.Load(); f != nil {
		st.LastFrame = f.at.Format(time.RFC3339Nano)
		st.FrameSeq = f.seq
	}
	return st
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.statusSnapshot())
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	devices, err := s.backend.Devices()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(devices)
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.manager.OptionsJSON())
}

// handlePatchConfig applies a partial options update, e.g.
// {"pixel_format": "BayerRG8", "frame_rate": 21}.
func (s *Server) handlePatchConfig(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.manager.UpdateOptions(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.manager.OptionsJSON())
}

func (s *Server) handlePresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetNames())
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	jpeg, seq, ok := s.Latest()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no frame captured yet"})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	return c.Send(jpeg)
}

// handleMJPEG streams frames as multipart/x-mixed-replace until the client
// goes away or the server stops.
func (s *Server) handleMJPEG(c *fiber.Ctx) error {
	sub := s.frames.Subscribe(2)
	if sub == nil {
		return fiber.ErrServiceUnavailable
	}

	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderConnection, "close")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.frames.Unsubscribe(sub)

		if jpeg, _, ok := s.Latest(); ok {
			if writePart(w, jpeg) != nil {
				return
			}
		}
		for msg := range sub.C {
			if msg.Type != hub.FrameMessage {
				continue
			}
			if writePart(w, msg.Data) != nil {
				return
			}
		}
	})
	return nil
}

func writePart(w *bufio.Writer, jpeg []byte) error {
	fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg))
	w.Write(jpeg)
	w.WriteString("\r\n")
	return w.Flush()
}

func (s *Server) handleCameraWS(conn *websocket.Conn) {
	if client := hub.NewClient(s.frames, conn); client != nil {
		client.Run()
	}
}

func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := hub.NewClient(s.status, conn)
	if client == nil {
		return
	}
	if err := s.status.BroadcastJSON(s.statusSnapshot()); err != nil {
		s.logger.Debug("initial status broadcast failed", "error", err)
	}
	client.Run()
}
