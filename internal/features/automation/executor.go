package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	common_models "go-tpm/internal/common/models"

	"github.com/d5/tengo/v2"
	"go.uber.org/zap"
)

const (
	ActionNotify    = "notify"
	ActionWebhook   = "webhook"
	ActionRunScript = "run_script"
)

// Notifier is satisfied by the notification feature
type Notifier interface {
	Notify(ctx context.Context, tenantID, userID, title, message, link string) error
}

// ActionExecutor runs the actions attached to a template's escalation
// rules. Failures are logged, not propagated: one broken action must
// not stop the rest.
type ActionExecutor interface {
	ExecuteActions(ctx context.Context, tenantID string, actions []common_models.RuleAction, payload map[string]interface{}) error
	ExecuteAction(ctx context.Context, tenantID string, action common_models.RuleAction, payload map[string]interface{}) error
}

type ActionExecutorImpl struct {
	notifier   Notifier
	logger     *zap.Logger
	httpClient *http.Client
}

func NewActionExecutor(notifier Notifier, logger *zap.Logger) ActionExecutor {
	return &ActionExecutorImpl{
		notifier:   notifier,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *ActionExecutorImpl) ExecuteActions(ctx context.Context, tenantID string, actions []common_models.RuleAction, payload map[string]interface{}) error {
	for i, action := range actions {
		if err := e.ExecuteAction(ctx, tenantID, action, payload); err != nil {
			e.logger.Warn("action execution failed",
				zap.Int("index", i),
				zap.String("type", action.Type),
				zap.String("tenant", tenantID),
				zap.Error(err))
		}
	}
	return nil
}

func (e *ActionExecutorImpl) ExecuteAction(ctx context.Context, tenantID string, action common_models.RuleAction, payload map[string]interface{}) error {
	switch action.Type {
	case ActionNotify:
		return e.executeNotify(ctx, tenantID, action.Config, payload)
	case ActionWebhook:
		return e.executeWebhook(ctx, action.Config, payload)
	case ActionRunScript:
		return e.executeRunScript(action.Config, payload)
	default:
		return fmt.Errorf("unsupported action type: %s", action.Type)
	}
}

func (e *ActionExecutorImpl) executeNotify(ctx context.Context, tenantID string, config map[string]interface{}, payload map[string]interface{}) error {
	userID, _ := config["user_id"].(string)
	title, _ := config["title"].(string)
	message, _ := config["message"].(string)
	link, _ := config["link"].(string)

	if userID == "" {
		return fmt.Errorf("notify action requires user_id")
	}

	title = replacePlaceholders(title, payload)
	message = replacePlaceholders(message, payload)

	return e.notifier.Notify(ctx, tenantID, userID, title, message, link)
}

func (e *ActionExecutorImpl) executeWebhook(ctx context.Context, config map[string]interface{}, payload map[string]interface{}) error {
	url, _ := config["url"].(string)
	if url == "" {
		return fmt.Errorf("webhook action requires url")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (e *ActionExecutorImpl) executeRunScript(config map[string]interface{}, payload map[string]interface{}) error {
	scriptContent, _ := config["script"].(string)
	if scriptContent == "" {
		return fmt.Errorf("script content is required")
	}

	script := tengo.NewScript([]byte(scriptContent))
	script.Add("payload", payload)

	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("failed to compile script: %w", err)
	}

	if err := compiled.Run(); err != nil {
		return fmt.Errorf("script execution failed: %w", err)
	}
	return nil
}

// replacePlaceholders substitutes {{field}} markers with payload values
func replacePlaceholders(text string, payload map[string]interface{}) string {
	for key, value := range payload {
		text = strings.ReplaceAll(text, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return text
}
