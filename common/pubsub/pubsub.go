// Package pubsub propagates events between wardbot processes over redis,
// mostly cache evictions: when one process mutates the blocklist or the
// highlight set, the others have to drop their compiled caches.
package pubsub

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/mediocregopher/radix/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ward-gg/wardbot/common"
)

const channel = "wardbot_events"

type Event struct {
	EventName string
	Data      interface{}
}

type eventHandler struct {
	evt     string
	handler func(*Event)
}

var (
	eventHandlers = make([]*eventHandler, 0)
	handlersMU    sync.RWMutex
	eventTypes    = make(map[string]reflect.Type)

	logger = common.GetFixedPrefixLogger("pubsub")
)

// AddHandler adds an event handler for the specified event,
// should only be done during startup
func AddHandler(evt string, cb func(*Event), t interface{}) {
	handlersMU.Lock()
	defer handlersMU.Unlock()

	if t != nil {
		eventTypes[evt] = reflect.TypeOf(t)
	}

	eventHandlers = append(eventHandlers, &eventHandler{evt: evt, handler: cb})
	logger.WithField("evt", evt).Debug("Added event handler")
}

// Publish publishes the specified event to all processes, including this one.
func Publish(evt string, data interface{}) error {
	dataStr := ""
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		dataStr = string(encoded)
	}

	value := fmt.Sprintf("%s,%s", evt, dataStr)
	metricsPubsubSent.With(prometheus.Labels{"event": evt}).Inc()
	return common.RedisPool.Do(radix.Cmd(nil, "PUBLISH", channel, value))
}

func PublishLogErr(evt string, data interface{}) {
	err := Publish(evt, data)
	if err != nil {
		logger.WithError(err).WithField("evt", evt).Error("failed publishing pubsub event")
	}
}

// PollEvents subscribes and handles events until the process exits,
// reconnecting on failure. Run in its own goroutine.
func PollEvents() {
	for {
		err := runPollEvents()
		logger.WithError(err).Error("pubsub subscription ended, starting a new one...")
		time.Sleep(time.Second)
	}
}

func runPollEvents() error {
	conn, err := radix.PersistentPubSubWithOpts("tcp", common.ConfRedisAddr.GetString())
	if err != nil {
		return err
	}
	defer conn.Close()

	msgChan := make(chan radix.PubSubMessage, 100)
	if err := conn.Subscribe(msgChan, channel); err != nil {
		return err
	}

	for msg := range msgChan {
		if len(msg.Message) < 1 {
			continue
		}

		handlersMU.RLock()
		handleEvent(string(msg.Message))
		handlersMU.RUnlock()
	}

	return nil
}

func handleEvent(raw string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("recovered from panic in pubsub event handler: %v\n%s", r, debug.Stack())
		}
	}()

	name, dataStr, _ := strings.Cut(raw, ",")

	var data interface{}
	if t, ok := eventTypes[name]; ok && dataStr != "" {
		data = reflect.New(t).Interface()
		if err := json.Unmarshal([]byte(dataStr), data); err != nil {
			logger.WithError(err).WithField("evt", name).Error("failed decoding pubsub event")
			return
		}
	}

	event := &Event{EventName: name, Data: data}

	handled := false
	for _, h := range eventHandlers {
		if h.evt == name {
			h.handler(event)
			handled = true
		}
	}

	if handled {
		metricsPubsubHandled.With(prometheus.Labels{"event": name}).Inc()
	} else {
		metricsPubsubSkipped.With(prometheus.Labels{"event": name}).Inc()
	}
}

var metricsPubsubHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wardbot_pubsub_events_handled_total",
	Help: "Number of pubsub events handled",
}, []string{"event"})

var metricsPubsubSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wardbot_pubsub_events_sent_total",
	Help: "Number of pubsub events sent",
}, []string{"event"})

var metricsPubsubSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wardbot_pubsub_events_skipped_total",
	Help: "Number of pubsub events skipped (no handler registered)",
}, []string{"event"})
