// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

// This is a test server standing in for the booking service. It can be used
// to try out availbench locally, optionally over TLS with client
// authentication.
//
// The TLS setup was influenced by an example project in GitHub - https://github.com/jcbsmpsn/golang-https-example

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/availbench/internal/stubserver"
)

func main() {
	help := flag.Bool("help", false, "Optional, prints usage info")
	host := flag.String("host", "localhost", "The hostname, must be resolvable via DNS when TLS is used")
	port := flag.String("port", "8080", "The listen port, defaults to 8080")
	numUsers := flag.Int("users", 250, "The number of synthetic users, user1@test.com and up")
	password := flag.String("password", "password", "The password shared by every synthetic user")
	secret := flag.String("secret", "availbench-test-secret", "The token signing secret")
	serviceDelay := flag.Duration("servicedelay", 0, "Added latency for the service logic endpoint")
	sqlDelay := flag.Duration("sqldelay", 0, "Added latency for the SQL logic endpoint")
	logLevel := flag.Int("loglevel", int(zerolog.InfoLevel), "log level, 0 for debug, 1 info, 2 warn, ...")
	serverPEM := flag.String("srvpem", "", "Optional, the name of the server's PEM file, enables TLS")
	clientPEM := flag.String("clientpem", "", "Optional, the name of the to be authenticated client's PEM file")
	privKey := flag.String("key", "", "Optional, the file name of the server's private key file")
	flag.Parse()

	usage := `usage:

testserver [-host <hostname> -port <port> -users <n> -password <pw> -servicedelay <dur> -sqldelay <dur>]
           [-srvpem <serverPEMFile> -key <serverPrivateKeyFile> [-clientpem <clientPEMFile>]] [-help]

Options:
  -help          Prints this message
  -host          A DNS resolvable host name, defaults to localhost
  -port          The port for the server to listen on, defaults to 8080
  -users         The number of synthetic users, defaults to 250
  -password      The password shared by every user, defaults to 'password'
  -secret        The token signing secret
  -servicedelay  Latency added to /host/rooms/{roomId}/availability
  -sqldelay      Latency added to /host/rooms/{roomId}/availability/sql
  -loglevel      Logging level, 0 is DEBUG (logs every request)
  -srvpem        The name the server's PEM file, enables TLS
  -key           The name the server's key PEM file, required with -srvpem
  -clientpem     The name the to be authenticated client's PEM file`

	if *help {
		fmt.Println(usage)
		return
	}
	if (*serverPEM == "") != (*privKey == "") {
		fmt.Printf("-srvpem and -key must be provided together:\n%s", usage)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.Level(*logLevel))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})

	srv, err := stubserver.New(stubserver.Config{
		NumUsers:     *numUsers,
		EmailFormat:  "user%d@test.com",
		Password:     *password,
		Secret:       []byte(*secret),
		ServiceDelay: *serviceDelay,
		SQLDelay:     *sqlDelay,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create test server")
	}

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      srv.Handler(log.Logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	if *serverPEM == "" {
		log.Info().Msgf("Starting server on host %s and port %s", *host, *port)
		if err := server.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	server.TLSConfig = tlsConfig(*host, *clientPEM)
	log.Info().Msgf("Starting TLS server on host %s and port %s", *host, *port)
	if err := server.ListenAndServeTLS(*serverPEM, *privKey); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func tlsConfig(host, clientPEMFile string) *tls.Config {
	cfg := &tls.Config{ServerName: host}
	if clientPEMFile == "" {
		return cfg
	}

	clientPEM, err := os.ReadFile(clientPEMFile)
	if err != nil {
		log.Fatal().Err(err).Msgf("Error opening cert file %s", clientPEMFile)
	}
	caCertPool := x509.NewCertPool()
	caCertPool.AppendCertsFromPEM(clientPEM)

	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	cfg.ClientCAs = caCertPool
	return cfg
}
