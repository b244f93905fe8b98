package protocol

import (
	"github.com/sirupsen/logrus"

	"github.com/smartgate/doorctl/pkg/clickgate"
	"github.com/smartgate/doorctl/pkg/door"
)

// Executor runs parsed requests. *controller.Controller implements it.
type Executor interface {
	Execute(cmd door.Command) (door.Result, error)
	UpdateClickGate(u clickgate.Update) (door.GateConfig, error)
}

// Reply is what a request produced, in command order.
type Reply struct {
	Results  []door.Result    `json:"results,omitempty"`
	Settings *door.GateConfig `json:"settings,omitempty"`
}

// Dispatch applies the settings update first, then runs the commands. It
// stops at the first executor error, which only happens once the controller
// has shut down or the settings update is invalid.
func Dispatch(e Executor, req Request, source string) (Reply, error) {
	var reply Reply

	if req.Settings != nil && !req.Settings.Empty() {
		cfg, err := e.UpdateClickGate(*req.Settings)
		if err != nil {
			return reply, err
		}
		reply.Settings = &cfg
	}

	for _, cmd := range req.Commands {
		res, err := e.Execute(cmd)
		if err != nil {
			return reply, err
		}
		logrus.WithFields(logrus.Fields{
			"source":  source,
			"command": cmd,
			"result":  res,
		}).Info("command handled")
		reply.Results = append(reply.Results, res)
	}
	return reply, nil
}
