package kiosk

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"presenza/pkg/domain"
	dErrors "presenza/pkg/domain-errors"
)

// DeviceStore persists registered scanner devices.
type DeviceStore interface {
	Save(ctx context.Context, device Device) error
	Find(ctx context.Context, deviceID domain.DeviceID) (Device, error)
}

// Registry registers and authenticates scanner devices. Device keys
// are random, bcrypt-hashed at rest, and returned in plaintext exactly
// once.
type Registry struct {
	store DeviceStore
	now   func() time.Time
}

func NewRegistry(store DeviceStore) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Register creates a device bound to a conference zone and returns it
// with the one-time plaintext key.
func (r *Registry) Register(ctx context.Context, conferenceID domain.ConferenceID, zoneID domain.ZoneID, mode Mode, name string) (Device, string, error) {
	key, err := generateKey()
	if err != nil {
		return Device{}, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return Device{}, "", fmt.Errorf("could not hash device key: %w", err)
	}

	device := Device{
		ID:           domain.NewDeviceID(),
		ConferenceID: conferenceID,
		ZoneID:       zoneID,
		Mode:         mode,
		Name:         name,
		KeyHash:      string(hash),
		CreatedAt:    r.now(),
	}
	if err := r.store.Save(ctx, device); err != nil {
		return Device{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "save device")
	}
	return device, key, nil
}

// Authenticate verifies the presented key against the stored hash. It
// returns the same opaque error for unknown devices and wrong keys.
func (r *Registry) Authenticate(ctx context.Context, deviceID domain.DeviceID, key string) (Device, error) {
	device, err := r.store.Find(ctx, deviceID)
	if err != nil {
		return Device{}, ErrDeviceAuth
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.KeyHash), []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Device{}, ErrDeviceAuth
		}
		return Device{}, fmt.Errorf("could not verify device key: %w", err)
	}
	return device, nil
}

func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate device key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// InMemoryDeviceStore backs tests and single-node development.
type InMemoryDeviceStore struct {
	mu      sync.RWMutex
	devices map[domain.DeviceID]Device
}

func NewInMemoryDeviceStore() *InMemoryDeviceStore {
	return &InMemoryDeviceStore{devices: make(map[domain.DeviceID]Device)}
}

func (s *InMemoryDeviceStore) Save(_ context.Context, device Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device.ID] = device
	return nil
}

func (s *InMemoryDeviceStore) Find(_ context.Context, deviceID domain.DeviceID) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if device, ok := s.devices[deviceID]; ok {
		return device, nil
	}
	return Device{}, dErrors.New(dErrors.CodeNotFound, "device not found")
}
