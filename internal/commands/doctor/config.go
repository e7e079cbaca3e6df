package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/parley/internal/core/config"
)

// ConfigCheck validates the configuration file and the credentials it
// points at.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

// NewConfigCheck creates a new configuration check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{
		config:     cfg,
		configPath: configPath,
	}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config loaded",
			Status: StatusFail,
			Detail: "configuration not loaded",
		})
		return result
	}

	if err := c.config.ValidateDeep(c.configPath); err != nil {
		result.Items = append(result.Items, validationItems(err)...)
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config valid",
			Status: StatusPass,
			Detail: c.transportDetail(),
		})
	}

	if item, ok := c.credentialItem(); ok {
		result.Items = append(result.Items, item)
	}

	for _, w := range c.config.Warnings() {
		label := w.Category
		if w.Item != "" {
			label += " (" + w.Item + ")"
		}
		result.Items = append(result.Items, CheckItem{
			Label:  label,
			Status: StatusWarn,
			Detail: w.Message,
		})
	}

	return result
}

func (c *ConfigCheck) transportDetail() string {
	if c.config.Server.Transport == config.TransportNATS {
		return fmt.Sprintf("nats via %s", c.config.Server.NATSURL)
	}
	return fmt.Sprintf("websocket via %s", c.config.Server.SocketURL)
}

// credentialItem reports whether a token can be read. Missing credentials
// are left to the warnings.
func (c *ConfigCheck) credentialItem() (CheckItem, bool) {
	if c.config.Auth.Token == "" && c.config.Auth.TokenFile == "" {
		return CheckItem{}, false
	}

	token, err := c.config.Token()
	switch {
	case err != nil:
		return CheckItem{Label: "Token", Status: StatusFail, Detail: err.Error()}, true
	case token == "":
		return CheckItem{Label: "Token", Status: StatusFail, Detail: "token file is empty"}, true
	default:
		return CheckItem{Label: "Token", Status: StatusPass}, true
	}
}

func validationItems(err error) []CheckItem {
	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return []CheckItem{{Label: "validation", Status: StatusFail, Detail: err.Error()}}
	}

	items := make([]CheckItem, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		label := fe.Field
		if label == "" {
			label = "validation"
		}
		items = append(items, CheckItem{Label: label, Status: StatusFail, Detail: fe.Err.Error()})
	}
	return items
}
