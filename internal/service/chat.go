package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CrewForge/internal/domain/agent"
	"github.com/Strob0t/CrewForge/internal/domain/chat"
	"github.com/Strob0t/CrewForge/internal/domain/event"
	"github.com/Strob0t/CrewForge/internal/domain/run"
	"github.com/Strob0t/CrewForge/internal/domain/settings"
	"github.com/Strob0t/CrewForge/internal/domain/tool"
	"github.com/Strob0t/CrewForge/internal/port/artifact"
	"github.com/Strob0t/CrewForge/internal/port/database"
	"github.com/Strob0t/CrewForge/internal/port/eventbus"
)

// ChatService handles human messages posted into a run. The message lands in
// the chat log, is routed by mention resolution, and every resolved target
// replies immediately.
type ChatService struct {
	store      database.Store
	artifacts  artifact.Store
	runtime    *AgentRuntime
	dispatcher *Dispatcher
	settings   *SettingsService
	teams      *TeamService
	bus        eventbus.Bus
	logger     *slog.Logger
}

func NewChatService(store database.Store, artifacts artifact.Store, runtime *AgentRuntime, dispatcher *Dispatcher, settingsSvc *SettingsService, teams *TeamService, bus eventbus.Bus, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:      store,
		artifacts:  artifacts,
		runtime:    runtime,
		dispatcher: dispatcher,
		settings:   settingsSvc,
		teams:      teams,
		bus:        bus,
		logger:     logger,
	}
}

// Post appends the author's message to the run chat and gathers replies from
// every agent the message resolves to. Unlike the background fan-out, posted
// messages always get an answer from each target.
func (s *ChatService) Post(ctx context.Context, runID, author, content string) ([]chat.Message, error) {
	r, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	agents, err := s.teams.Roster(ctx, r.TeamID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	ps := s.settings.Get(ctx, r.ProjectID)

	msg := chat.Message{
		MessageID: uuid.NewString(),
		Agent:     author,
		Role:      "user",
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.artifacts.WriteChat(runID, "user", msg); err != nil {
		return nil, fmt.Errorf("write chat message: %w", err)
	}
	s.bus.Publish(event.New(event.TypeChatMessage, map[string]any{
		"run_id":  runID,
		"author":  author,
		"content": content,
	}))

	var replies []chat.Message
	for _, target := range chat.ResolveTargets(agents, content, chat.TargetPolicy(ps.ChatTargetPolicy)) {
		replies = append(replies, s.replyTo(ctx, r, &target, ps, author, content))
	}
	return replies, nil
}

func (s *ChatService) replyTo(ctx context.Context, r *run.Run, target *agent.Agent, ps *settings.ProjectSetting, author, content string) chat.Message {
	prompt := s.runtime.BuildPrompt(target, r, ps, fmt.Sprintf(
		"%s wrote in the team chat: %q\nAnswer them directly.", author, content))
	response := s.runtime.Respond(ctx, r, target, prompt)
	if call := tool.ExtractCall(response); call != nil {
		response = s.dispatcher.Dispatch(ctx, r, target, ps, "", call)
	}
	response = strings.TrimSpace(response)
	return s.runtime.Say(ctx, r.ID, target, response)
}
