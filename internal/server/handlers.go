package server

import (
	"bytes"
	"errors"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	regionconsole "github.com/menta2k/region-console"
	"github.com/menta2k/region-console/pkg/router"
)

func (s *Server) fail(c *gin.Context, code int, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		code = http.StatusRequestEntityTooLarge
	}
	_ = c.Error(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// regionIndex parses the :index path parameter and checks it against the
// current regions.
func (s *Server) regionIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 || i >= len(s.console.Snapshot().Regions) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no region " + c.Param("index")})
		return 0, false
	}
	return i, true
}

// loadImage accepts a multipart "image" file or a JSON ImageRequest.
func (s *Server) loadImage(c *gin.Context) {
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		err = s.loadUpload(c)
	} else {
		var req ImageRequest
		if err = c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, err)
			return
		}
		switch {
		case req.DataURL != "":
			err = s.console.LoadDataURL(req.DataURL)
		case req.Source != "":
			err = s.console.LoadImage(c.Request.Context(), req.Source)
		default:
			err = errors.New("data_url or source is required")
		}
	}
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) loadUpload(c *gin.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return err
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	s.logger.Debug("image uploaded", zap.String("filename", fh.Filename), zap.Int64("size", fh.Size))
	return s.console.LoadBytes(data)
}

func (s *Server) session(c *gin.Context) {
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) catalog(c *gin.Context) {
	cat := s.console.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"desktop": cat.Desktop(),
		"experts": cat.Experts(),
	})
}

func (s *Server) addRegion(c *gin.Context) {
	if !s.console.AddRegion() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "region limit reached"})
		return
	}
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) clearAll(c *gin.Context) {
	s.console.ClearAll()
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) setActive(c *gin.Context) {
	var req ActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if !s.console.SetActive(req.Index) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no region " + strconv.Itoa(req.Index)})
		return
	}
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) setBox(c *gin.Context) {
	i, ok := s.regionIndex(c)
	if !ok {
		return
	}
	var req BoxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if !s.console.SetBox(i, req.Box) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "box is empty after clamping"})
		return
	}
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) clearRegion(c *gin.Context) {
	i, ok := s.regionIndex(c)
	if !ok {
		return
	}
	s.console.ClearRegion(i)
	c.JSON(http.StatusOK, s.console.Snapshot())
}

func (s *Server) setViewport(c *gin.Context) {
	var req ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	s.console.SetViewport(req.Width, req.Height)
	c.Status(http.StatusNoContent)
}

func (s *Server) pointer(c *gin.Context) {
	var req PointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	var committed bool
	switch req.Event {
	case "down":
		s.console.PointerDown(req.X, req.Y)
	case "move":
		s.console.PointerMove(req.X, req.Y)
	case "up":
		committed = s.console.PointerUp(req.X, req.Y)
	case "cancel":
		s.console.CancelEdit()
	}
	snap := s.console.Snapshot()
	c.JSON(http.StatusOK, PointerResponse{
		Committed: committed,
		Editor:    snap.Editor,
		Active:    snap.Active,
	})
}

func (s *Server) pickerOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"selection": s.console.Snapshot().Selection,
		"options":   s.console.Options(),
	})
}

func (s *Server) selectExpert(c *gin.Context) {
	var req PickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if _, ok := s.console.Catalog().Expert(req.Name); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown expert " + req.Name})
		return
	}
	s.console.SelectExpert(req.Name)
	c.JSON(http.StatusOK, gin.H{"options": s.console.Options()})
}

func (s *Server) selectScreen(c *gin.Context) {
	var req PickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	out := s.console.SelectScreen(req.Name)
	c.JSON(http.StatusOK, AssignResponse{AssignOutcome: out, Session: s.console.Snapshot()})
}

func (s *Server) browseScreen(c *gin.Context) {
	var req PickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if !s.console.BrowseScreen(req.Name) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown screen " + req.Name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": s.console.Options()})
}

func (s *Server) selectElement(c *gin.Context) {
	var req PickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	out := s.console.SelectElement(req.Name)
	c.JSON(http.StatusOK, AssignResponse{AssignOutcome: out, Session: s.console.Snapshot()})
}

func (s *Server) clearSelection(c *gin.Context) {
	s.console.ClearSelection()
	c.JSON(http.StatusOK, gin.H{"options": s.console.Options()})
}

// run executes an inference run. Backend failures are part of the run
// outcome and still answer 200; only a missing image is a client error.
func (s *Server) run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, http.StatusBadRequest, err)
			return
		}
	}
	if s.monitor != nil {
		done := s.monitor.Begin()
		defer done()
	}

	out := s.console.Run(c.Request.Context(), req.params())
	if errors.Is(out.Err, regionconsole.ErrNoImage) {
		s.fail(c, http.StatusBadRequest, out.Err)
		return
	}
	if out.Err != nil {
		_ = c.Error(out.Err)
	}
	c.JSON(http.StatusOK, newRunResponse(out, s.console.Snapshot()))
}

func (s *Server) overlay(c *gin.Context) {
	img, err := s.console.Render()
	if err != nil {
		s.fail(c, http.StatusNotFound, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// proxyInference relays a raw inference request to the endpoint chosen by
// its adapter field and passes the upstream answer through.
func (s *Server) proxyInference(c *gin.Context) {
	if s.router == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "inference proxy requires the router backend"})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	code, out, err := s.router.Forward(c.Request.Context(), body)
	if err != nil {
		var endpointErr *router.EndpointError
		switch {
		case errors.As(err, &endpointErr):
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Endpoint not configured for adapter: " + endpointErr.Adapter})
		case errors.Is(err, router.ErrInvalidBody):
			s.fail(c, http.StatusBadRequest, err)
		default:
			s.fail(c, http.StatusBadGateway, err)
		}
		return
	}
	c.Data(code, "application/json", out)
}

func (s *Server) status(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusOK, StatusResponse{Status: router.StatusUnknown})
		return
	}
	if c.Query("refresh") == "true" {
		s.monitor.Refresh(c.Request.Context())
	}
	st, checked := s.monitor.Status()
	resp := StatusResponse{Status: st}
	if !checked.IsZero() {
		resp.CheckedAt = &checked
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) warmup(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "warmup requires the router backend"})
		return
	}
	st := s.monitor.Warmup(c.Request.Context())
	_, checked := s.monitor.Status()
	c.JSON(http.StatusOK, StatusResponse{Status: st, CheckedAt: &checked})
}
