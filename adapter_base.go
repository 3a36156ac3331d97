package fuzzcan

import (
	"log"
	"sync"
)

// BaseAdapter carries the channel plumbing shared by all adapters.
type BaseAdapter struct {
	name      string
	cfg       *AdapterConfig
	sendChan  chan *CANFrame
	recvChan  chan *CANFrame
	errChan   chan error
	closeChan chan struct{}
	closeOnce sync.Once
}

func NewBaseAdapter(name string, cfg *AdapterConfig) BaseAdapter {
	if cfg == nil {
		cfg = &AdapterConfig{}
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) { log.Println(msg) }
	}
	if cfg.OnError == nil {
		cfg.OnError = func(err error) { log.Println(err) }
	}
	return BaseAdapter{
		name:      name,
		cfg:       cfg,
		sendChan:  make(chan *CANFrame, 10),
		recvChan:  make(chan *CANFrame, 1024),
		errChan:   make(chan error, 10),
		closeChan: make(chan struct{}),
	}
}

func (base *BaseAdapter) Name() string {
	return base.name
}

func (base *BaseAdapter) Send() chan<- *CANFrame {
	return base.sendChan
}

func (base *BaseAdapter) Recv() <-chan *CANFrame {
	return base.recvChan
}

func (base *BaseAdapter) Err() <-chan error {
	return base.errChan
}

func (base *BaseAdapter) Close() {
	base.closeOnce.Do(func() {
		close(base.closeChan)
	})
}

func (base *BaseAdapter) SetError(err error) {
	select {
	case base.errChan <- err:
	default:
		log.Println("adapter error channel full")
	}
}
