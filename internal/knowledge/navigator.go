package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quickAIautomation/quickvetpro/internal/cache"
)

// NodeReader is the store surface the navigator needs.
type NodeReader interface {
	Documents(ctx context.Context) ([]Document, error)
	Roots(ctx context.Context, documentID int64) ([]Node, error)
	Children(ctx context.Context, parentID int64) ([]Node, error)
	NodesByID(ctx context.Context, ids []int64) ([]Node, error)
	Outline(ctx context.Context, documentID int64) ([]Node, error)
}

// Decider makes one navigation decision given a rendered prompt, and
// answers in the ACTION/TARGET/REASON wire format. Production wires a
// genkit-backed implementation; tests script the answers.
type Decider interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, prompt string) (string, error)

func (f DeciderFunc) Decide(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const navigatorSystem = `Você navega pelo sumário de manuais veterinários para localizar a seção que responde à pergunta do usuário.

A cada passo você recebe a pergunta, o caminho já percorrido e as seções candidatas. Responda SEMPRE neste formato, sem texto adicional:

ACTION: VISIT ou STOP
TARGET: <id da seção> (apenas quando ACTION for VISIT)
REASON: <justificativa em uma linha>

Use STOP quando o conteúdo já coletado for suficiente ou nenhuma candidata for relevante.`

// NewGenkitDecider returns a Decider backed by genkit generation with
// the given model.
func NewGenkitDecider(g *genkit.Genkit, model string) DeciderFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := genkit.Generate(ctx, g,
			ai.WithModelName(model),
			ai.WithSystem(navigatorSystem),
			ai.WithPrompt(prompt),
		)
		if err != nil {
			return "", fmt.Errorf("%w: navigation decision: %w", ErrProviderUnavailable, err)
		}
		return resp.Text(), nil
	}
}

// Section is one piece of leaf material collected during a walk, kept
// as separate title and body so consumers can match the body alone
// against content from other retrieval strategies.
type Section struct {
	Title   string
	Content string
}

// NavigationResult is the outcome of a structural walk.
type NavigationResult struct {
	Content  string
	Sections []Section
	Path     []NavigationStep
}

// decision is one parsed ACTION/TARGET/REASON answer.
type decision struct {
	stop   bool
	target int64
	reason string
}

var targetIDPattern = regexp.MustCompile(`\d+`)

// Navigator walks document outline trees guided by the model. Starting
// from the document roots it repeatedly offers the model the unvisited
// children and cross-references of the current node, collects content
// from every visited leaf, and stops when the model declares the
// material sufficient or a traversal bound is hit.
//
// Each Navigate call keeps its own state; the Navigator itself is safe
// for concurrent use.
type Navigator struct {
	reader   NodeReader
	decider  Decider
	cache    *cache.Cache
	maxDepth int32
	maxSteps int
	logger   *slog.Logger
}

// NewNavigator creates a Navigator. maxDepth bounds how deep into a
// tree the walk may descend, maxSteps bounds the total number of model
// decisions.
func NewNavigator(reader NodeReader, decider Decider, c *cache.Cache,
	maxDepth int32, maxSteps int, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxDepth < 1 {
		maxDepth = 5
	}
	if maxSteps < 1 {
		maxSteps = 10
	}
	return &Navigator{
		reader:   reader,
		decider:  decider,
		cache:    c,
		maxDepth: maxDepth,
		maxSteps: maxSteps,
		logger:   logger,
	}
}

// Navigate answers query by walking the corpus trees. When the walk
// hits a bound or a dead end without collecting any content it returns
// ErrNavigationExhausted together with a result carrying the partial
// path, so callers can report where the walk stalled.
func (n *Navigator) Navigate(ctx context.Context, query string) (*NavigationResult, error) {
	docs, err := n.reader.Documents(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrEmptyCorpus
	}

	candidates, err := n.initialCandidates(ctx, docs)
	if err != nil {
		return nil, err
	}

	var (
		visited   = make(map[int64]bool)
		path      []NavigationStep
		collected []Node
		current   *Node
	)

	for steps := 0; steps < n.maxSteps; steps++ {
		candidates = filterVisited(candidates, visited)
		if len(candidates) == 0 {
			break
		}

		prompt, err := n.renderPrompt(ctx, query, docs, current, path, candidates)
		if err != nil {
			return nil, err
		}

		answer, err := n.decider.Decide(ctx, prompt)
		if err != nil {
			return nil, err
		}

		dec, ok := parseDecision(answer)
		if !ok {
			n.logger.Warn("unparseable navigation answer", "answer", answer)
			break
		}
		if dec.stop {
			break
		}

		next, ok := pick(candidates, dec.target)
		if !ok {
			n.logger.Warn("navigation target not offered", "target", dec.target)
			break
		}
		if visited[next.ID] {
			// Revisiting means the walk is cycling through
			// cross-references; stop instead of looping.
			break
		}

		visited[next.ID] = true
		path = append(path, NavigationStep{NodeID: next.ID, Title: next.Title, Reason: dec.reason})
		if next.Leaf() {
			collected = append(collected, next)
		}

		current = &next
		candidates, err = n.successors(ctx, next)
		if err != nil {
			return nil, err
		}
	}

	if len(collected) == 0 {
		return &NavigationResult{Path: path}, ErrNavigationExhausted
	}

	sections := make([]Section, 0, len(collected))
	for _, node := range collected {
		sections = append(sections, Section{Title: node.Title, Content: node.Content})
	}

	n.logger.Debug("structural navigation",
		"steps", len(path), "sections", len(sections))
	return &NavigationResult{
		Content:  renderSections(sections),
		Sections: sections,
		Path:     path,
	}, nil
}

// initialCandidates offers the root sections of every document.
func (n *Navigator) initialCandidates(ctx context.Context, docs []Document) ([]Node, error) {
	var roots []Node
	for _, d := range docs {
		r, err := n.reader.Roots(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		roots = append(roots, r...)
	}
	return roots, nil
}

// successors lists where the walk may go from node: its children when
// the depth bound allows, plus its cross-references.
func (n *Navigator) successors(ctx context.Context, node Node) ([]Node, error) {
	var out []Node

	if node.Level+1 <= n.maxDepth {
		children, err := n.reader.Children(ctx, node.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}

	refs, err := n.reader.NodesByID(ctx, node.Refs)
	if err != nil {
		return nil, err
	}
	out = append(out, refs...)

	return out, nil
}

func (n *Navigator) renderPrompt(ctx context.Context, query string, docs []Document,
	current *Node, path []NavigationStep, candidates []Node) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Pergunta: %s\n\n", query)

	if current == nil {
		b.WriteString("Documentos disponíveis:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s\n", d.Title)
		}
		b.WriteString("\n")
	} else {
		toc, err := n.tableOfContents(ctx, current.DocumentID)
		if err != nil {
			return "", err
		}
		b.WriteString("Sumário do documento atual:\n")
		b.WriteString(toc)
		b.WriteString("\n")
	}

	if len(path) > 0 {
		b.WriteString("Caminho percorrido:\n")
		for _, step := range path {
			fmt.Fprintf(&b, "- [%d] %s\n", step.NodeID, step.Title)
		}
		b.WriteString("\n")
	}

	b.WriteString("Seções candidatas:\n")
	for _, c := range candidates {
		kind := "seção"
		if c.Leaf() {
			kind = "conteúdo"
		}
		fmt.Fprintf(&b, "- [%d] %s (%s)\n", c.ID, c.Title, kind)
	}

	return b.String(), nil
}

// tableOfContents renders a document outline, indented by level. The
// rendering is cached per document with the TOC lifetime.
func (n *Navigator) tableOfContents(ctx context.Context, documentID int64) (string, error) {
	key := cache.DocKey(cache.ClassTOC, documentID)

	raw, _, err := n.cache.GetOrCompute(key, cache.ClassTOC, func() ([]byte, error) {
		nodes, err := n.reader.Outline(ctx, documentID)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for _, node := range nodes {
			fmt.Fprintf(&b, "%s[%d] %s\n", strings.Repeat("  ", int(node.Level)), node.ID, node.Title)
		}
		return []byte(b.String()), nil
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func parseDecision(answer string) (decision, bool) {
	var dec decision
	seen := false

	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ACTION:"):
			seen = true
			verb := strings.TrimSpace(upper[len("ACTION:"):])
			dec.stop = strings.Contains(verb, "STOP") || strings.Contains(verb, "SUFFICIENT")
		case strings.HasPrefix(upper, "TARGET:"):
			if m := targetIDPattern.FindString(line); m != "" {
				id, err := strconv.ParseInt(m, 10, 64)
				if err == nil {
					dec.target = id
				}
			}
		case strings.HasPrefix(upper, "REASON:"):
			dec.reason = strings.TrimSpace(line[len("REASON:"):])
		}
	}

	if !seen || (!dec.stop && dec.target == 0) {
		return decision{}, false
	}
	return dec, true
}

func filterVisited(nodes []Node, visited map[int64]bool) []Node {
	out := nodes[:0]
	for _, n := range nodes {
		if !visited[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

func pick(nodes []Node, id int64) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func renderSection(s Section) string {
	return fmt.Sprintf("## %s\n\n%s", s.Title, s.Content)
}

func renderSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, renderSection(s))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
