package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"google.golang.org/genai"
)

const (
	maxLawyersPerGroup = 5
	maxRelevanceScore  = 10
	minLabels          = 3
	maxLabels          = 7
)

var ErrEmptyCompletion = errors.New("model returned no content")

// RosterEntry is what the matcher sees of a verified lawyer.
type RosterEntry struct {
	AccountID       int64    `json:"accountId"`
	Name            string   `json:"name"`
	Bio             string   `json:"bio"`
	Expertise       string   `json:"expertise"`
	Jurisdictions   []string `json:"jurisdictions"`
	Labels          []string `json:"labels"`
	ConsultationFee string   `json:"consultationFee"`
}

type GroupingMember struct {
	AccountID      int64   `json:"accountId"`
	RelevanceScore float64 `json:"relevanceScore"`
	RoleInGroup    string  `json:"roleInGroup"`
}

// Grouping is one proposed lawyer group, most relevant first.
type Grouping struct {
	GroupName string           `json:"groupName"`
	Reasoning string           `json:"reasoning"`
	Lawyers   []GroupingMember `json:"lawyers"`
}

type GroupMatcher interface {
	MatchGroups(ctx context.Context, need string, roster []RosterEntry) ([]Grouping, error)
}

type LawyerProfile struct {
	Name            string
	Bio             string
	Expertise       string
	Jurisdictions   []string
	ConsultationFee string
}

type LabelExtractor interface {
	ExtractLabels(ctx context.Context, profile LawyerProfile) ([]string, error)
}

const groupingPreamble = `You are a legal matchmaking assistant. Given a client's description of their situation and a roster of verified lawyers, form groups of lawyers who together can handle the client's matter.

Rules:
- Each group has between 1 and 5 lawyers.
- Only use accountId values from the roster.
- relevanceScore is a number from 0 to 10 describing how relevant the lawyer is to this client.
- roleInGroup is a short description of what the lawyer contributes to the group.
- Return several alternative groups ordered from most to least relevant.
- reasoning explains in one or two sentences why the group fits the client.`

const labelPreamble = `You are an expert legal categorization system. Based on lawyer information, extract relevant labels that categorize their practice areas, skills, and specializations.

Generate 3-7 relevant labels that would help clients find this lawyer. Focus on:
- Practice areas (e.g., "Corporate Law", "Criminal Defense", "Family Law")
- Specializations (e.g., "Contract Disputes", "Immigration", "Personal Injury")
- Client types (e.g., "Startups", "Individuals", "Small Business")
- Notable skills or certifications mentioned

Return only the most relevant and specific labels. Avoid generic terms like "Lawyer" or "Legal".`

var groupingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"groups": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"groupName": {Type: genai.TypeString},
					"reasoning": {Type: genai.TypeString},
					"lawyers": {
						Type:     genai.TypeArray,
						MinItems: genai.Ptr[int64](1),
						MaxItems: genai.Ptr[int64](maxLawyersPerGroup),
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"accountId":      {Type: genai.TypeInteger},
								"relevanceScore": {Type: genai.TypeNumber, Minimum: genai.Ptr[float64](0), Maximum: genai.Ptr[float64](maxRelevanceScore)},
								"roleInGroup":    {Type: genai.TypeString},
							},
							Required: []string{"accountId", "relevanceScore", "roleInGroup"},
						},
					},
				},
				Required: []string{"groupName", "reasoning", "lawyers"},
			},
		},
	},
	Required: []string{"groups"},
}

var labelSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"labels": {
			Type:     genai.TypeArray,
			Items:    &genai.Schema{Type: genai.TypeString},
			MinItems: genai.Ptr[int64](minLabels),
			MaxItems: genai.Ptr[int64](maxLabels),
		},
	},
	Required: []string{"labels"},
}

// GeminiMatcher implements GroupMatcher and LabelExtractor on the Gemini API.
type GeminiMatcher struct {
	client *genai.Client
	model  string
}

func NewGeminiMatcher(ctx context.Context, apiKey, model string) (*GeminiMatcher, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiMatcher{client: client, model: model}, nil
}

func (m *GeminiMatcher) generateJSON(ctx context.Context, preamble, prompt string, schema *genai.Schema) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(preamble, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (m *GeminiMatcher) MatchGroups(ctx context.Context, need string, roster []RosterEntry) ([]Grouping, error) {
	rosterJSON, err := json.Marshal(roster)
	if err != nil {
		return nil, fmt.Errorf("marshal roster: %w", err)
	}
	prompt := "Knowledge:\nVerified lawyers:\n" + string(rosterJSON) + "\n\nUser:\n" + need

	raw, err := m.generateJSON(ctx, groupingPreamble, prompt, groupingSchema)
	if err != nil {
		return nil, err
	}
	return parseGroupings(raw)
}

func (m *GeminiMatcher) ExtractLabels(ctx context.Context, p LawyerProfile) ([]string, error) {
	prompt := fmt.Sprintf("Name: %s\nBio: %s\nExpertise: %s\nJurisdictions: %s\nConsultation Fee: $%s",
		p.Name, p.Bio, p.Expertise, strings.Join(p.Jurisdictions, ", "), p.ConsultationFee)

	raw, err := m.generateJSON(ctx, labelPreamble, prompt, labelSchema)
	if err != nil {
		return nil, err
	}
	return parseLabels(raw)
}

// parseGroupings decodes a grouping response and drops groups that break
// the size or score bounds. Account ids are kept as returned.
func parseGroupings(raw string) ([]Grouping, error) {
	var payload struct {
		Groups []Grouping `json:"groups"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode groupings: %w", err)
	}

	out := make([]Grouping, 0, len(payload.Groups))
	for _, g := range payload.Groups {
		if conformingGroup(g) {
			out = append(out, g)
		}
	}
	return out, nil
}

func conformingGroup(g Grouping) bool {
	if strings.TrimSpace(g.GroupName) == "" {
		return false
	}
	if len(g.Lawyers) < 1 || len(g.Lawyers) > maxLawyersPerGroup {
		return false
	}
	for _, l := range g.Lawyers {
		if l.RelevanceScore < 0 || l.RelevanceScore > maxRelevanceScore {
			return false
		}
	}
	return true
}

// parseLabels title-cases and dedupes labels, keeping at most seven.
func parseLabels(raw string) ([]string, error) {
	var payload struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}

	caser := cases.Title(language.English)
	seen := make(map[string]bool)
	out := make([]string, 0, maxLabels)
	for _, l := range payload.Labels {
		l = caser.String(strings.Join(strings.Fields(l), " "))
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
		if len(out) == maxLabels {
			break
		}
	}
	if len(out) < minLabels {
		return nil, fmt.Errorf("expected at least %d labels, got %d", minLabels, len(out))
	}
	return out, nil
}

var ErrMatcherDisabled = errors.New("lawyer matching is not configured")

// DisabledMatcher is used when no LLM key is configured.
type DisabledMatcher struct{}

func (DisabledMatcher) MatchGroups(context.Context, string, []RosterEntry) ([]Grouping, error) {
	return nil, ErrMatcherDisabled
}

func (DisabledMatcher) ExtractLabels(context.Context, LawyerProfile) ([]string, error) {
	return nil, ErrMatcherDisabled
}
