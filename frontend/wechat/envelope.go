package wechat

import (
	"encoding/xml"
	"fmt"
)

// Envelope is the inbound message payload posted by the platform. Fields not
// relevant to the relay are ignored by the XML decoder.
type Envelope struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	Recognition  string   `xml:"Recognition"`
	PicUrl       string   `xml:"PicUrl"`
}

// ParseEnvelope decodes an inbound envelope and rejects payloads missing the
// fields every message type carries.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("wechat: parse envelope: %w", err)
	}
	if env.FromUserName == "" || env.MsgType == "" {
		return Envelope{}, fmt.Errorf("wechat: envelope missing FromUserName or MsgType")
	}
	return env, nil
}

// cdata wraps a string in a CDATA section when marshalled.
type cdata struct {
	Text string `xml:",cdata"`
}

// passiveReply is the synchronous XML reply body. Field order is fixed by the
// platform: ToUserName, FromUserName, CreateTime, MsgType, Content.
type passiveReply struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   cdata    `xml:"ToUserName"`
	FromUserName cdata    `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      cdata    `xml:"MsgType"`
	Content      cdata    `xml:"Content"`
}

// TextReply renders the passive text reply sent inline for message types the
// relay does not forward to the model. to/from are swapped relative to the
// inbound envelope.
func TextReply(toUser, fromUser string, createTime int64, content string) ([]byte, error) {
	reply := passiveReply{
		ToUserName:   cdata{toUser},
		FromUserName: cdata{fromUser},
		CreateTime:   createTime,
		MsgType:      cdata{"text"},
		Content:      cdata{content},
	}
	out, err := xml.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("wechat: marshal reply: %w", err)
	}
	return out, nil
}
