package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/stewardlab/steward/pkg/models"
)

// defaultMaxTokens caps responses when neither the request nor the config
// sets a limit.
const defaultMaxTokens = 8192

// Config configures the Anthropic backend.
type Config struct {
	// APIKey is the Anthropic API key. If empty, the ANTHROPIC_API_KEY
	// environment variable is used.
	APIKey string
	// UseBedrock routes calls through AWS Bedrock instead of the direct
	// API.
	UseBedrock bool
	// AWSRegion is the Bedrock region, for example "us-west-2".
	AWSRegion string
	// AWSProfile is an optional shared-config profile name.
	AWSProfile string
	// Models maps capability tiers to model identifiers. Missing tiers
	// fall back to DefaultTierModels.
	Models map[models.Tier]string
	// MaxTokens is the default response cap.
	MaxTokens int64
}

// DefaultTierModels maps each capability tier to the model that serves it.
func DefaultTierModels() map[models.Tier]string {
	return map[models.Tier]string{
		models.TierReflex:   string(anthropic.ModelClaude3_5Haiku20241022),
		models.TierLight:    string(anthropic.ModelClaudeHaiku4_5_20251001),
		models.TierStandard: string(anthropic.ModelClaudeSonnet4_20250514),
		models.TierHeavy:    string(anthropic.ModelClaudeOpus4_1_20250805),
	}
}

// Anthropic serves completions through the Anthropic SDK, directly or via
// AWS Bedrock.
type Anthropic struct {
	client    anthropic.Client
	tierModel map[models.Tier]anthropic.Model
	maxTokens int64
	tracker   *TokenTracker
}

// NewAnthropic creates the backend. The direct path requires an API key;
// the Bedrock path loads AWS configuration from the environment.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	var opts []option.RequestOption

	if cfg.UseBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no API key: set ANTHROPIC_API_KEY or configure Bedrock")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	tierModel := make(map[models.Tier]anthropic.Model, len(models.Ladder()))
	defaults := DefaultTierModels()
	for _, tier := range models.Ladder() {
		name, ok := cfg.Models[tier]
		if !ok || name == "" {
			name = defaults[tier]
		}
		model := anthropic.Model(name)
		if cfg.UseBedrock {
			model = translateModelForBedrock(model)
		}
		tierModel[tier] = model
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		tierModel: tierModel,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
	}, nil
}

// Tracker returns the usage tracker for this backend.
func (a *Anthropic) Tracker() *TokenTracker {
	return a.tracker
}

// Complete implements Backend.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Completion, error) {
	model := a.modelFor(req.Tier)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("completion request (%s): %w", model, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		}
	}

	a.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return &Completion{
		Text:      text.String(),
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
		Model:     string(model),
	}, nil
}

// modelFor resolves the model serving a tier, falling back to the standard
// tier for unknown values.
func (a *Anthropic) modelFor(tier models.Tier) anthropic.Model {
	if model, ok := a.tierModel[tier]; ok {
		return model
	}
	return a.tierModel[models.TierStandard]
}

// translateModelForBedrock converts model names to Bedrock cross-region
// inference profile identifiers. Names already in Bedrock format pass
// through unchanged.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

var _ Backend = (*Anthropic)(nil)
