package intent

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lanternhealth/clinic-concierge/internal/scheduling"
	"github.com/lanternhealth/clinic-concierge/pkg/logging"
)

const intentPrompt = `Extract the key fields from a user's appointment request.
Return JSON only. If no booking intent can be read, return {"hasIntent": false}.

Example inputs:
- "Book Zhang Li with Dr. Liu Yang tomorrow afternoon"
- "I need to see Dr. Li Ming tomorrow morning"
- "Get my mother an appointment with Dr. Wang the day after tomorrow"

Fields to extract:
1. patient name
2. doctor name
3. date as an offset in days from today (today=0, tomorrow=1, ...)
4. time band: morning / afternoon / evening

Response format:
{
  "hasIntent": true,
  "patientName": "Zhang Li",
  "doctorName": "Liu Yang",
  "dateOffset": 1,
  "timeBand": "afternoon"
}

If some fields are missing, still return the ones you found and leave the rest null.`

const profilePrompt = `Extract the patient's profile and medical history from the
conversation below. Set any field that was never mentioned to null.

Rules:
1. Analyze the whole conversation, extract every available detail.
2. Return JSON only.
3. If the conversation holds no usable patient data, return {"hasData": false}.

Response format:
{
  "hasData": true,
  "name": "full name",
  "gender": "male/female",
  "dateOfBirth": "1990-01-01",
  "phone": "phone number",
  "idCard": "national id number",
  "address": "address",
  "allergies": "allergies",
  "medicalHistory": "prior conditions",
  "familyHistory": "family history"
}`

// jsonBlock pulls the first {...} object out of prose the model wraps around it.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAINormalizer implements Normalizer against any OpenAI-compatible
// chat-completions endpoint (OpenAI, DeepSeek, Qwen, ...).
type OpenAINormalizer struct {
	client      chatClient
	model       string
	temperature float32
	timeout     time.Duration
	logger      *logging.Logger
}

// Option configures the normalizer.
type Option func(*OpenAINormalizer)

// WithTemperature overrides the sampling temperature for extraction calls.
func WithTemperature(t float32) Option {
	return func(n *OpenAINormalizer) {
		if t >= 0 {
			n.temperature = t
		}
	}
}

// WithTimeout bounds each completion call. A slow provider must not hold a
// session's turn lock indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(n *OpenAINormalizer) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// NewOpenAINormalizer builds a normalizer for the given endpoint. baseURL may
// be empty for api.openai.com.
func NewOpenAINormalizer(apiKey, baseURL, model string, logger *logging.Logger, opts ...Option) *OpenAINormalizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAINormalizerWithClient(openai.NewClientWithConfig(cfg), model, logger, opts...)
}

// NewOpenAINormalizerWithClient allows injecting a fake client for tests.
func NewOpenAINormalizerWithClient(client chatClient, model string, logger *logging.Logger, opts ...Option) *OpenAINormalizer {
	if client == nil {
		panic("intent: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = logging.Default()
	}
	n := &OpenAINormalizer{
		client:      client,
		model:       model,
		temperature: 0.2,
		timeout:     20 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ParseIntent reads a booking intent out of free text. Provider failures and
// unparseable replies degrade to Intent{HasIntent: false}.
func (n *OpenAINormalizer) ParseIntent(ctx context.Context, freeText string) (Intent, error) {
	raw, err := n.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: intentPrompt},
		{Role: openai.ChatMessageRoleUser, Content: freeText},
	})
	if err != nil {
		n.logger.Warn("intent parse degraded to no-intent", "error", err)
		return Intent{}, nil
	}

	var dto struct {
		HasIntent   bool    `json:"hasIntent"`
		PatientName *string `json:"patientName"`
		DoctorName  *string `json:"doctorName"`
		DateOffset  *int    `json:"dateOffset"`
		TimeBand    *string `json:"timeBand"`
	}
	if !decodeJSONBlock(raw, &dto) {
		n.logger.Warn("intent reply held no JSON object", "reply_len", len(raw))
		return Intent{}, nil
	}
	if !dto.HasIntent {
		return Intent{}, nil
	}

	out := Intent{HasIntent: true}
	if dto.PatientName != nil {
		out.PatientName = strings.TrimSpace(*dto.PatientName)
	}
	if dto.DoctorName != nil {
		out.DoctorName = strings.TrimSpace(*dto.DoctorName)
	}
	if dto.DateOffset != nil && *dto.DateOffset >= 0 {
		out.DateOffset = dto.DateOffset
	}
	if dto.TimeBand != nil {
		if band, ok := scheduling.ParseTimeBand(*dto.TimeBand); ok {
			out.TimeBand = band
		}
	}
	return out, nil
}

// ExtractProfile reads a full patient profile out of the conversation so far.
func (n *OpenAINormalizer) ExtractProfile(ctx context.Context, conversation []ChatTurn) (ProfileExtraction, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(conversation)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleSystem, Content: profilePrompt,
	})
	for _, turn := range conversation {
		role := openai.ChatMessageRoleUser
		if strings.EqualFold(turn.Role, "assistant") {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: "Extract the patient profile from the conversation above as JSON.",
	})

	raw, err := n.complete(ctx, messages)
	if err != nil {
		n.logger.Warn("profile extraction degraded to no-data", "error", err)
		return ProfileExtraction{}, nil
	}

	var dto struct {
		HasData        bool    `json:"hasData"`
		Name           *string `json:"name"`
		Gender         *string `json:"gender"`
		DateOfBirth    *string `json:"dateOfBirth"`
		Phone          *string `json:"phone"`
		IDCard         *string `json:"idCard"`
		Address        *string `json:"address"`
		Allergies      *string `json:"allergies"`
		MedicalHistory *string `json:"medicalHistory"`
		FamilyHistory  *string `json:"familyHistory"`
	}
	if !decodeJSONBlock(raw, &dto) {
		n.logger.Warn("profile reply held no JSON object", "reply_len", len(raw))
		return ProfileExtraction{}, nil
	}
	if !dto.HasData {
		return ProfileExtraction{}, nil
	}

	out := ProfileExtraction{HasData: true}
	out.Name = deref(dto.Name)
	out.Gender = deref(dto.Gender)
	out.Phone = deref(dto.Phone)
	out.IDCard = deref(dto.IDCard)
	out.Address = deref(dto.Address)
	out.Allergies = deref(dto.Allergies)
	out.MedicalHistory = deref(dto.MedicalHistory)
	out.FamilyHistory = deref(dto.FamilyHistory)
	if dto.DateOfBirth != nil {
		if dob, err := time.Parse("2006-01-02", strings.TrimSpace(*dto.DateOfBirth)); err == nil {
			dob = dob.UTC()
			out.DateOfBirth = &dob
		}
	}
	return out, nil
}

func (n *OpenAINormalizer) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       n.model,
		Messages:    messages,
		Temperature: n.temperature,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

var errEmptyCompletion = errors.New("intent: completion returned no choices")

func decodeJSONBlock(raw string, v any) bool {
	block := jsonBlock.FindString(raw)
	if block == "" {
		return false
	}
	return json.Unmarshal([]byte(block), v) == nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

var _ Normalizer = (*OpenAINormalizer)(nil)
