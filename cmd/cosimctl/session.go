// Copyright (C) 2026 CoSim Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func runCreateSession(cmd *cobra.Command, args []string) {
	engine, _ := cmd.Flags().GetString("engine")
	modelRef, _ := cmd.Flags().GetString("model-ref")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	fps, _ := cmd.Flags().GetInt("fps")
	headless, _ := cmd.Flags().GetBool("headless")

	body, err := json.Marshal(map[string]any{
		"session_id": args[0],
		"engine":     engine,
		"model_ref":  modelRef,
		"width":      width,
		"height":     height,
		"fps":        fps,
		"headless":   headless,
	})
	if err != nil {
		fail("encode request body: %v", err)
	}

	resp, err := httpClient.Post(gatewayURL+"/v1/simulations/create", "application/json", bytes.NewReader(body))
	if err != nil {
		fail("create session: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	req, err := http.NewRequest(http.MethodDelete, gatewayURL+"/v1/simulations/"+args[0], nil)
	if err != nil {
		fail("build request: %v", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		fail("delete session: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func runInspectSession(cmd *cobra.Command, args []string) {
	resp, err := httpClient.Get(gatewayURL + "/v1/simulations/" + args[0] + "/state")
	if err != nil {
		fail("inspect session: %v", err)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fail("read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "%s: %s\n", resp.Status, raw)
		os.Exit(1)
	}
	if len(raw) == 0 {
		fmt.Println(resp.Status)
		return
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
