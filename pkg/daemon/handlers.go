package daemon

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/config"
	"github.com/smartgate/doorctl/pkg/controller"
	"github.com/smartgate/doorctl/pkg/door"
	"github.com/smartgate/doorctl/pkg/protocol"
	"github.com/smartgate/doorctl/pkg/rf"
	"github.com/smartgate/doorctl/pkg/schedule"
	"github.com/smartgate/doorctl/pkg/version"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Door           door.Snapshot `json:"door"`
	BleAdvertising bool          `json:"bleAdvertising"`
	BleAdvert      string        `json:"bleAdvert,omitempty"`
	MockHardware   bool          `json:"mockHardware"`
	Version        string        `json:"version"`
}

// ResultResponse is returned by the single-event endpoints.
type ResultResponse struct {
	Result   door.Result `json:"result"`
	Rejected bool        `json:"rejected"`
}

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

// controllerError maps a failed controller call.
func controllerError(c *gin.Context, err error) {
	if errors.Is(err, controller.ErrStopped) {
		abort(c, http.StatusServiceUnavailable, err)
		return
	}
	abort(c, http.StatusBadRequest, err)
}

func readBody(c *gin.Context) ([]byte, bool) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return nil, false
	}
	return b, true
}

func (s *server) getStatus(c *gin.Context) {
	snap, err := s.ctrl.Snapshot()
	if err != nil {
		controllerError(c, err)
		return
	}
	resp := StatusResponse{
		Door:         snap,
		MockHardware: s.conf.MockHardware(),
		Version:      version.Version,
	}
	if s.adv != nil {
		resp.BleAdvertising = s.adv.Advertising()
		resp.BleAdvert = string(s.adv.Payload())
	}
	c.IndentedJSON(http.StatusOK, resp)
}

func (s *server) postCommand(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	req, err := protocol.ParsePayload(body)
	if err != nil {
		if req.Empty() {
			abort(c, http.StatusBadRequest, err)
			return
		}
		logrus.WithError(err).Warn("command payload carried unknown values")
	}

	reply, err := protocol.Dispatch(s.ctrl, req, "api")
	if err != nil {
		controllerError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, reply)
}

func (s *server) postRF(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	code, err := rf.ParseCode(string(body))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	res, err := s.ctrl.HandleRFCode(code)
	if err != nil {
		controllerError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"code":   code,
		"result": res,
	}).Info("rf code injected")
	c.IndentedJSON(http.StatusOK, ResultResponse{Result: res, Rejected: res.Rejected()})
}

func (s *server) postButton(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	evt, err := door.ParseButtonEvent(strings.Trim(strings.TrimSpace(string(body)), `"`))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	res, err := s.ctrl.HandleButton(evt)
	if err != nil {
		controllerError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{
		"event":  evt,
		"result": res,
	}).Info("button event injected")
	c.IndentedJSON(http.StatusOK, ResultResponse{Result: res, Rejected: res.Rejected()})
}

func (s *server) getClickGate(c *gin.Context) {
	snap, err := s.ctrl.Snapshot()
	if err != nil {
		controllerError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, snap.ClickGate)
}

func (s *server) setClickGate(c *gin.Context) {
	var u clickgate.Update
	if err := c.BindJSON(&u); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	cfg, err := s.ctrl.UpdateClickGate(u)
	if err != nil {
		controllerError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, cfg)
}

func (s *server) postBleWrite(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	out, err := s.prov.Handle(body)
	if err != nil {
		controllerError(c, err)
		return
	}
	if out.MQTTChanged && s.onProvisioned != nil {
		s.onProvisioned()
	}
	c.IndentedJSON(http.StatusOK, out)
}

func (s *server) getSchedule(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.sched.Status())
}

func (s *server) setSchedule(c *gin.Context) {
	var jobs []schedule.Job
	if err := c.BindJSON(&jobs); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if err := s.sched.Load(jobs); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s.conf.SetSchedules(jobs)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("jobs", len(jobs)).Info("schedule updated")
	c.IndentedJSON(http.StatusCreated, s.sched.Status())
}

func (s *server) skipSchedule(c *gin.Context) {
	if err := s.sched.Skip(c.Param("name")); err != nil {
		abort(c, http.StatusNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, s.sched.Status())
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
