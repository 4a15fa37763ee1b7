// Command devicehost hosts the sample HTestService device (spec.md §8's
// end-to-end scenarios): an Echo action that reflects its input, and a
// Register action that increments an evented client-count variable so a
// control point can watch it change over a GENA subscription.
package main

import (
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost"
	"gargoton.petite-maison-orange.fr/eric/devicehost/builder"
	"gargoton.petite-maison-orange.fr/eric/devicehost/config"
	"gargoton.petite-maison-orange.fr/eric/devicehost/description"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

//go:embed xml/device.xml xml/scpd.xml
var deviceFS embed.FS

func hTestFactory(info tree.DeviceInfo) (map[tree.ServiceID]builder.ServiceHandlers, error) {
	sid, err := tree.ParseServiceID("urn:herqq-org:serviceId:HTestService")
	if err != nil {
		return nil, err
	}

	var clients uint32

	echo := func(svc *tree.Service, in map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"MessageOut": in["MessageIn"]}, nil
	}
	register := func(svc *tree.Service, in map[string]interface{}) (map[string]interface{}, error) {
		n := atomic.AddUint32(&clients, 1)
		if _, err := svc.WithVariable("RegisteredClientCount", func(interface{}) (interface{}, error) {
			return n, nil
		}); err != nil {
			return nil, err
		}
		return map[string]interface{}{"ClientCount": n}, nil
	}

	return map[tree.ServiceID]builder.ServiceHandlers{
		sid: {
			Actions: map[string]tree.ActionHandler{
				"Echo":     echo,
				"Register": register,
			},
			// Listener left nil: Host wires every service's change
			// notifications to the Event Notifier itself after Build
			// returns, so applications never need a GENA dependency.
		},
	}, nil
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a devicehost YAML config file")
	flag.Parse()

	log := logrus.StandardLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}
	if cfg.PathToDeviceDescription == "" {
		cfg.PathToDeviceDescription = "device.xml"
	}

	xmlFS, err := fs.Sub(deviceFS, "xml")
	if err != nil {
		log.WithError(err).Fatal("preparing embedded description filesystem")
	}
	provider, err := description.NewFSProvider(xmlFS, ".")
	if err != nil {
		log.WithError(err).Fatal("constructing description provider")
	}

	host := devicehost.New(devicehost.Config{
		Config:   cfg,
		Provider: provider,
		Factory:  hTestFactory,
	}, log)

	if err := host.Init(); err != nil {
		log.WithError(err).Fatal("initialising device host")
	}
	log.Info("device host initialised, serving HTestService")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if err := host.Quit(); err != nil {
		fmt.Fprintln(os.Stderr, "devicehost: shutdown error:", err)
		os.Exit(1)
	}
}
