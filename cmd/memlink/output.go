package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"sigs.k8s.io/yaml"

	"github.com/rocketbitz/obmm-go/topology"
)

// printControllersTable renders discovered bus controllers as a
// human-readable table.
func printControllersTable(w io.Writer, controllers []topology.Controller) {
	table := tablewriter.NewTable(w)
	table.Header("SLOT", "EID", "UMMU MAP", "NUMA", "PRIMARY CNA")
	for _, c := range controllers {
		table.Append(
			fmt.Sprintf("%d", c.Slot),
			c.EID.String(),
			fmt.Sprintf("%d", c.MappingIndex),
			fmt.Sprintf("%d", c.NUMA),
			fmt.Sprintf("%#x", c.PrimaryCNA),
		)
	}
	table.Render()
}

// printControllersJSON renders discovered bus controllers as JSON.
func printControllersJSON(w io.Writer, controllers []topology.Controller) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(controllers)
}

// printControllersYAML renders discovered bus controllers as YAML.
func printControllersYAML(w io.Writer, controllers []topology.Controller) error {
	data, err := yaml.Marshal(controllers)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
