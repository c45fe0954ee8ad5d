package websocket

import (
	"context"

	"assistant-proxy-be/internal/dto"
	"assistant-proxy-be/internal/service"
	"assistant-proxy-be/pkg/conversation"
	"assistant-proxy-be/pkg/upstream"
)

// ServiceGateway lets a server-hosted machine call the proxy service in process.
type ServiceGateway struct {
	service service.IAssistantService
}

func NewServiceGateway(svc service.IAssistantService) *ServiceGateway {
	return &ServiceGateway{service: svc}
}

func (g *ServiceGateway) Launch(ctx context.Context, userID string) error {
	_, err := g.service.Interact(ctx, &dto.InteractRequest{
		UserId: userID,
		Action: upstream.ActionLaunch,
	})
	return err
}

func (g *ServiceGateway) SendMessage(ctx context.Context, userID, message string, services []string) ([]conversation.Step, error) {
	res, err := g.service.Interact(ctx, &dto.InteractRequest{
		UserId:           userID,
		Action:           upstream.ActionText,
		Message:          message,
		SelectedServices: services,
	})
	if err != nil {
		return nil, err
	}
	return conversation.StepsFromTraces(res.Traces), nil
}

func (g *ServiceGateway) SaveTranscript(ctx context.Context, userID string) error {
	_, err := g.service.SaveTranscript(ctx, &dto.SaveTranscriptRequest{UserId: userID})
	return err
}

// NotifyingSink tells every widget of the session once its transcript is saved.
type NotifyingSink struct {
	sink conversation.TranscriptSink
	hub  *Hub
}

func NewNotifyingSink(sink conversation.TranscriptSink, hub *Hub) *NotifyingSink {
	return &NotifyingSink{sink: sink, hub: hub}
}

func (s *NotifyingSink) SaveTranscript(ctx context.Context, userID string) error {
	if err := s.sink.SaveTranscript(ctx, userID); err != nil {
		return err
	}
	s.hub.SendTo(userID, MessageTranscriptSaved, map[string]string{"user_id": userID})
	return nil
}
