// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish mirrors VTX state to an MQTT broker.
//
// Topics, relative to the prefix taken from the broker URL path:
//
//	status      retained JSON Status, on every state change
//	statistics  JSON link statistics, when enabled
package publish

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Topic names
const (
	TopicStatus     = "status"
	TopicStatistics = "statistics"
)

const appID = "smartaudio"

// ClientOptionsFromURL creates client options from a broker URL of the form
// mqtt://[user[:password]@]host:port/topic/prefix/?client-id=name.
// It returns the options and the topic prefix.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	if u.Host == "" {
		return nil, "", fmt.Errorf("broker URL %q has no host", serverURL)
	}

	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")
	if topicPrefix != "" && !strings.HasSuffix(topicPrefix, "/") {
		topicPrefix += "/"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	clientID := u.Query().Get("client-id")
	if clientID == "" {
		clientID = DefaultClientID()
	}
	opts.SetClientID(clientID)

	return opts, topicPrefix, nil
}

// DefaultClientID derives a stable client id from the machine id, hashed
// so the raw id never leaves the host
func DefaultClientID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("publish: machine id unavailable: %v", err)
		return fmt.Sprintf("%s-%d", appID, time.Now().UnixNano())
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return appID + "-" + id
}

// StatusMessage is the JSON form of a Status
type StatusMessage struct {
	Version      string `json:"version"`
	Band         string `json:"band"`
	Channel      int    `json:"channel"`
	Frequency    uint16 `json:"frequency"`
	PowerIndex   int    `json:"power_index"`
	PowerMW      int    `json:"power_mw"`
	TxMode       string `json:"tx_mode"`
	PitFrequency uint16 `json:"pit_frequency,omitempty"`
	OpMode       uint8  `json:"op_mode"`
	Display      string `json:"display"`
	Time         int64  `json:"time"`
}

// NewStatusMessage converts a Status for publishing
func NewStatusMessage(st smartaudio.Status, at time.Time) StatusMessage {
	return StatusMessage{
		Version:      st.Version.String(),
		Band:         string(st.BandLetter()),
		Channel:      st.Channel,
		Frequency:    st.Frequency,
		PowerIndex:   st.PowerIndex,
		PowerMW:      st.MilliWatts(),
		TxMode:       st.TxMode.String(),
		PitFrequency: st.PitFrequency,
		OpMode:       uint8(st.OpMode),
		Display:      smartaudio.StatusString(st),
		Time:         at.Unix(),
	}
}

// StatisticsMessage is the JSON form of link statistics
type StatisticsMessage struct {
	Sent          uint64  `json:"sent"`
	Received      uint64  `json:"received"`
	ResponseRatio float64 `json:"response_ratio"`
	Errors        uint64  `json:"errors"`
	Retransmits   uint64  `json:"retransmits"`
	Echoes        uint64  `json:"echoes"`
	Dropped       uint64  `json:"dropped"`
	BaudRate      int     `json:"baud_rate"`
	BaudChanges   uint64  `json:"baud_changes"`
}

// NewStatisticsMessage converts link statistics for publishing
func NewStatisticsMessage(s smartaudio.Statistics, baud int) StatisticsMessage {
	return StatisticsMessage{
		Sent:          s.TotalSent,
		Received:      s.TotalReceived,
		ResponseRatio: s.ResponseRatio(),
		Errors:        s.Errors(),
		Retransmits:   s.Retransmits,
		Echoes:        s.Echoes,
		Dropped:       s.DroppedCommands,
		BaudRate:      baud,
		BaudChanges:   s.BaudChanges,
	}
}

// Publisher publishes VTX state. Publishing never blocks the caller; a
// failed publish is logged.
type Publisher struct {
	Client      paho.Client
	TopicPrefix string
}

// NewPublisher creates a publisher over an existing client
func NewPublisher(client paho.Client, topicPrefix string) *Publisher {
	return &Publisher{Client: client, TopicPrefix: topicPrefix}
}

// Dial connects to the broker at brokerURL
func Dial(brokerURL string, timeout time.Duration) (*Publisher, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		glog.Warningf("publish: connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", brokerURL, err)
	}
	glog.V(1).Infof("publish: connected to %s", brokerURL)
	return NewPublisher(client, prefix), nil
}

// PublishStatus publishes a retained status message
func (p *Publisher) PublishStatus(st smartaudio.Status) {
	p.publish(TopicStatus, NewStatusMessage(st, time.Now()), true)
}

// PublishStatistics publishes link statistics
func (p *Publisher) PublishStatistics(s smartaudio.Statistics, baud int) {
	p.publish(TopicStatistics, NewStatisticsMessage(s, baud), false)
}

func (p *Publisher) publish(topic string, v interface{}, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		glog.Warningf("publish: encode %s: %v", topic, err)
		return
	}
	glog.V(2).Infof("publish: PUB %q", p.TopicPrefix+topic)
	token := p.Client.Publish(p.TopicPrefix+topic, 0, retain, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			glog.Warningf("publish: %s: %v", topic, token.Error())
		}
	}()
}

// Close disconnects from the broker
func (p *Publisher) Close() error {
	p.Client.Disconnect(250)
	return nil
}
