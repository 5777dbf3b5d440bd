// Package publish sends mission messages to the cloud over MQTT.
package publish

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MQTT parameters
const (
	QoS      = 1 // QoS 2 isn't supported in GCP
	Retain   = false
	Username = "unused" // always this value in GCP
)

type Config struct {
	// Broker is protocol, address and port. Empty disables publishing.
	Broker         string        `yaml:"broker"`
	PrivateKey     string        `yaml:"private_key"`
	ProjectID      string        `yaml:"project_id"`
	Region         string        `yaml:"region"`
	RegistryID     string        `yaml:"registry_id"`
	Algorithm      string        `yaml:"algorithm"`
	TokenLifetime  time.Duration `yaml:"token_lifetime"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func DefaultConfig() Config {
	return Config{
		PrivateKey:     "/enclave/rsa_private.pem",
		ProjectID:      "auto-fleet-mgnt",
		Region:         "europe-west1",
		RegistryID:     "fleet-registry",
		Algorithm:      "RS256",
		TokenLifetime:  24 * time.Hour,
		ConnectTimeout: 5 * time.Second,
	}
}

func (conf Config) ClientID(deviceID string) string {
	return fmt.Sprintf(
		"projects/%s/locations/%s/registries/%s/devices/%s",
		conf.ProjectID, conf.Region, conf.RegistryID, deviceID)
}

// Password generates the JWT used as the MQTT password.
func (conf Config) Password(keyData []byte, now time.Time) (string, error) {
	var key interface{}
	var err error
	switch conf.Algorithm {
	case "RS256":
		key, err = jwt.ParseRSAPrivateKeyFromPEM(keyData)
	case "ES256":
		key, err = jwt.ParseECPrivateKeyFromPEM(keyData)
	default:
		return "", errors.Errorf("unknown algorithm: %s", conf.Algorithm)
	}
	if err != nil {
		return "", errors.WithMessage(err, "private key")
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(conf.Algorithm), &jwt.StandardClaims{
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(conf.TokenLifetime).Unix(),
		Audience:  conf.ProjectID,
	})
	return token.SignedString(key)
}

// Connect opens the MQTT connection, retrying timed out attempts until ctx
// is done.
func Connect(ctx context.Context, deviceID string, conf Config) (mqtt.Client, error) {
	log.Printf("MQTT address: %v", conf.Broker)
	clientID := conf.ClientID(deviceID)
	log.Println("MQTT client ID:", clientID)

	keyData, err := ioutil.ReadFile(conf.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "read private key")
	}
	pass, err := conf.Password(keyData, time.Now())
	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(clientID).
		SetUsername(Username).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetPassword(pass).
		SetProtocolVersion(4) // Use MQTT 3.1.1

	client := mqtt.NewClient(opts)

	for {
		log.Printf("Connecting MQTT...")
		tok := client.Connect()
		if !tok.WaitTimeout(conf.ConnectTimeout) {
			log.Println("Connection Timeout")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			continue
		}
		if err := tok.Error(); err != nil {
			return nil, errors.Wrap(err, "mqtt connect")
		}
		log.Printf("..Connected")
		return client, nil
	}
}
