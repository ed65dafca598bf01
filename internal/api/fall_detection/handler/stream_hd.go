package fallHandler

import (
	"HealthVision/internal/api/fall_detection"
	"HealthVision/internal/middleware"
	contextPkg "HealthVision/pkg/context"
	"HealthVision/pkg/response"
	"errors"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"sync"
	"time"
)

const (
	streamReadTimeout  = 120 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// handleClipStream runs one clip at a time per connection. A start message
// cancels whatever clip the connection was running; closing the socket
// cancels the current clip.
func (h *FallDetectionHandler) handleClipStream(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	staffID, _ := c.Locals(middleware.StaffIDKey).(string)

	logger := h.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"staff_id":   staffID,
	})
	logger.Info("Clip stream client connected")
	defer logger.Info("Clip stream client disconnected")

	connCtx, cancelConn := context.WithCancel(
		contextPkg.WithStaffID(contextPkg.WithRequestID(context.Background(), requestID), staffID))
	defer cancelConn()

	var (
		writeMu   sync.Mutex
		running   sync.WaitGroup
		cancelRun context.CancelFunc = func() {}
	)
	defer func() {
		cancelRun()
		running.Wait()
	}()

	write := func(msg fall_detection.StreamMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		if err := c.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return err
		}
		if err := c.WriteJSON(msg); err != nil {
			return err
		}
		return c.SetWriteDeadline(time.Time{})
	}

	c.SetPingHandler(func(data string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("Clip stream error: %v", err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			logger.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var req fall_detection.StreamStartRequest
		if err := jsoniter.Unmarshal(message, &req); err != nil {
			if err := write(streamError(errors.New("message is not valid JSON"), "INVALID_MESSAGE")); err != nil {
				break
			}
			continue
		}
		if err := h.validator.Struct(req); err != nil {
			if err := write(streamError(err, "VALIDATION_ERROR")); err != nil {
				break
			}
			continue
		}

		cancelRun()
		running.Wait()
		cancelRun = func() {}

		if req.Type == "stop" {
			continue
		}

		runCtx, cancel := context.WithCancel(connCtx)
		cancelRun = cancel

		running.Add(1)
		go func() {
			defer running.Done()
			defer cancel()

			_, err := h.fallService.StreamClip(runCtx, req, write)
			if err == nil || runCtx.Err() != nil {
				return
			}

			logger.WithFields(logrus.Fields{
				"patient_id": req.PatientID,
				"error":      err.Error(),
			}).Warn("Clip stream ended with error")

			if werr := write(streamFailure(err)); werr != nil {
				logger.Errorf("Error writing stream error: %v", werr)
			}
		}()
	}
}

func streamError(err error, code string) fall_detection.StreamMessage {
	return fall_detection.StreamMessage{
		Type:  fall_detection.StreamMessageError,
		Error: err.Error(),
		Code:  code,
	}
}

func streamFailure(err error) fall_detection.StreamMessage {
	if respErr, ok := response.As(err); ok {
		return streamError(err, respErr.Reason)
	}
	return streamError(errors.New("an unexpected error occurred"), "")
}
