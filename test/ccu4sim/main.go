package main

import (
	"flag"
	"harnsnode/pkg/drivers/ccu4/ccu4sim"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:3001", "Listen address")
	level := flag.Float64("level", 57.3, "Initial helium level in %")
	identity := flag.String("identity", ccu4sim.DefaultIdentity, "Reply to the cid request")
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	sim, err := ccu4sim.New(*addr)
	if err != nil {
		klog.ErrorS(err, "Failed to listen", "addr", *addr)
		os.Exit(1)
	}
	defer sim.Close()
	sim.Set("h", *level)
	sim.SetIdentity(*identity)
	klog.InfoS("CCU4 simulator listening", "uri", sim.URI())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
