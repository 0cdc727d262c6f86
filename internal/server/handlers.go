package server

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/fieldtrack/trackcheck/internal/dispatcher"
	"github.com/fieldtrack/trackcheck/internal/report"
	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/fieldtrack/trackcheck/internal/util"
	"github.com/fieldtrack/trackcheck/internal/worker"
	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/gofiber/fiber/v2"
)

const sourceHTTP = "http"

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "trackcheck",
		"version": s.deps.Version,
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	if s.deps.Status == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "status monitor not running")
	}
	return c.JSON(s.deps.Status.GetStatus())
}

func (s *Server) addSubject(c *fiber.Ctx) error {
	var in worker.SubjectInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	subject, err := s.deps.Worker.AddSubject(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(subject)
}

// addPoints accepts a single fix object or an array of fixes. An array is
// recorded up to the first failing fix.
func (s *Server) addPoints(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	var batch []worker.PointInput
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &batch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	} else {
		var in worker.PointInput
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		batch = []worker.PointInput{in}
	}

	for i, in := range batch {
		if err := s.deps.Worker.RecordPoint(c.UserContext(), in); err != nil {
			if len(batch) > 1 {
				return c.Status(statusFor(err)).JSON(fiber.Map{
					"error":    true,
					"message":  err.Error(),
					"accepted": i,
				})
			}
			return err
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": len(batch)})
}

type annotatePoint struct {
	Latitude  float64    `json:"latitude" validate:"latitude"`
	Longitude float64    `json:"longitude" validate:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
	Kind      string     `json:"kind" validate:"omitempty,oneof=check_in check_out call_start call_end route_point"`
}

type annotateRequest struct {
	Points []annotatePoint `json:"points" validate:"dive"`
}

// annotate runs the processor over a posted sequence without storing anything.
func (s *Server) annotate(c *fiber.Ctx) error {
	var req annotateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return err
	}

	points := make([]core.TrackPoint, len(req.Points))
	for i, p := range req.Points {
		var kind *core.TrackingType
		if p.Kind != "" {
			kind = core.TrackingType(p.Kind).Ptr()
		}
		points[i] = core.NewTrackPoint(i, p.Latitude, p.Longitude, p.Timestamp, kind)
	}

	return c.JSON(s.deps.Worker.Annotate(c.UserContext(), points))
}

type commandRequest struct {
	Command string   `json:"command" validate:"required"`
	Args    []string `json:"args"`
}

// dispatch hands a raw gateway command to the dispatcher. Buffered commands
// answer "queued" and report failures only in the log.
func (s *Server) dispatch(c *fiber.Ctx) error {
	if s.deps.Dispatcher == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "command dispatcher not running")
	}
	var req commandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	if !s.deps.Dispatcher.HasHandler(req.Command) {
		return fiber.NewError(fiber.StatusNotFound, "unknown command: "+req.Command)
	}

	result, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{
		Command:   req.Command,
		Args:      req.Args,
		Source:    sourceHTTP,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"command": req.Command, "result": result})
}

// loadTrack parses the :subject/:day params and returns the latest run.
func (s *Server) loadTrack(c *fiber.Ctx) (core.TrackRun, error) {
	subjectID, err := util.ParseUint(c.Params("subject"))
	if err != nil {
		return core.TrackRun{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	day := c.Params("day")
	if _, err := util.ParseDay(day); err != nil {
		return core.TrackRun{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return s.deps.Worker.Track(c.UserContext(), subjectID, day, sourceHTTP)
}

type trackResponse struct {
	core.TrackRun
	Markers []track.Marker `json:"markers"`
}

func (s *Server) getTrack(c *fiber.Ctx) error {
	run, err := s.loadTrack(c)
	if err != nil {
		return err
	}
	return c.JSON(trackResponse{TrackRun: run, Markers: track.Classify(run.Points)})
}

func (s *Server) getTrackGeoJSON(c *fiber.Ctx) error {
	run, err := s.loadTrack(c)
	if err != nil {
		return err
	}
	data, err := json.Marshal(report.GeoJSON(run))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(data)
}

// getTrackChart renders the speed profile, as HTML or with ?format=png as an image.
func (s *Server) getTrackChart(c *fiber.Ctx) error {
	run, err := s.loadTrack(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if c.Query("format") == "png" {
		if err := report.SpeedPlotPNG(&buf, run, s.deps.Worker.Processor()); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(buf.Bytes())
	}

	if err := report.SpeedChart(&buf, run, s.deps.Worker.Processor()); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
