package ble

import "time"

// SetAdvertiser installs the radio's advertising control surface. Must be
// called before StartMonitor.
func (s *Session) SetAdvertiser(advertiser Advertiser) {
	s.advertiser = advertiser
}

// SetCloudStatus installs the cloud-connectivity check consulted by the
// monitor loop.
func (s *Session) SetCloudStatus(cloud CloudStatus) {
	s.cloud = cloud
}

// StartMonitor launches the advertising monitor loop (Spec Section 4.6: every
// MonitorInterval, stop advertising once the cloud channel is connected,
// otherwise (re)start advertising with the current bound-flag payload;
// original ble_mgr.c's periodic advertising-state evaluation).
func (s *Session) StartMonitor() {
	s.monitorMu.Lock()
	if s.monitorCloseCh != nil {
		s.monitorMu.Unlock()
		return
	}
	s.monitorCloseCh = make(chan struct{})
	closeCh := s.monitorCloseCh
	s.monitorMu.Unlock()

	s.monitorWG.Add(1)
	go s.monitorLoop(closeCh)
}

// StopMonitor halts the advertising monitor loop and waits for it to exit.
func (s *Session) StopMonitor() {
	s.monitorMu.Lock()
	closeCh := s.monitorCloseCh
	s.monitorCloseCh = nil
	s.monitorMu.Unlock()

	if closeCh == nil {
		return
	}
	close(closeCh)
	s.monitorWG.Wait()
}

func (s *Session) monitorLoop(closeCh chan struct{}) {
	defer s.monitorWG.Done()

	ticker := time.NewTicker(s.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closeCh:
			return
		case <-ticker.C:
			s.evaluateAdvertising()
		}
	}
}

func (s *Session) evaluateAdvertising() {
	if s.advertiser == nil {
		return
	}

	cloudConnected := s.cloud != nil && s.cloud.Connected()

	s.mu.Lock()
	advertising := s.advertising
	s.mu.Unlock()

	if cloudConnected {
		if !advertising {
			return
		}
		if err := s.advertiser.StopAdvertising(); err != nil {
			if s.log != nil {
				s.log.Warnf("ble session: stop advertising: %v", err)
			}
			return
		}
		s.mu.Lock()
		s.advertising = false
		s.mu.Unlock()
		return
	}

	bound := s.config.IsBound()
	if err := s.advertiser.StartAdvertising(bound); err != nil {
		if s.log != nil {
			s.log.Warnf("ble session: start advertising: %v", err)
		}
		return
	}
	s.mu.Lock()
	s.advertising = true
	s.mu.Unlock()
}
