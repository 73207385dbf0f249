// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package external

import (
	"fmt"
	"strings"

	"github.com/bioarchive/mss/core"
)

// Mapping from a submission's DOI metadata to the Metax research-dataset
// shape. The DOI block follows the DataCite kernel; Metax expects typed
// agents, ISO dates and WKT geometry.

// builds a research-dataset document from a submission's DOI metadata
func ResearchDataset(doiInfo core.Document, title, description string) map[string]any {
	dataset := map[string]any{
		"title":       map[string]any{"en": title},
		"description": map[string]any{"en": description},
	}

	if creators := mapAgents(doiInfo["creators"]); len(creators) > 0 {
		dataset["creator"] = creators
	}
	mapContributors(doiInfo["contributors"], dataset)
	mapDates(doiInfo["dates"], dataset)
	if spatial := mapGeoLocations(doiInfo["geoLocations"]); len(spatial) > 0 {
		dataset["spatial"] = spatial
	}
	if identifiers := mapOtherIdentifiers(doiInfo["alternateIdentifiers"]); len(identifiers) > 0 {
		dataset["other_identifier"] = identifiers
	}
	if keywords := stringList(doiInfo["keywords"]); len(keywords) > 0 {
		dataset["keyword"] = keywords
	}
	return dataset
}

// converts a list of DataCite creators to Metax person agents
func mapAgents(value any) []map[string]any {
	agents := make([]map[string]any, 0)
	for _, entry := range documents(value) {
		agents = append(agents, mapPerson(entry))
	}
	return agents
}

func mapPerson(entry core.Document) map[string]any {
	person := map[string]any{
		"@type": "Person",
		"name": strings.TrimSpace(fmt.Sprintf("%s %s",
			core.StringField(entry, "givenName"),
			core.StringField(entry, "familyName"))),
	}
	if affiliations := documents(entry["affiliation"]); len(affiliations) > 0 {
		organization := map[string]any{
			"@type": "Organization",
			"name":  map[string]any{"en": core.StringField(affiliations[0], "name")},
		}
		if id := core.StringField(affiliations[0], "affiliationIdentifier"); id != "" {
			organization["identifier"] = id
		}
		person["member_of"] = organization
	}
	return person
}

// Splits DataCite contributors by role: rights holders and data curators
// land in their own dataset fields, everything else stays a contributor.
func mapContributors(value any, dataset map[string]any) {
	var rightsHolders, curators, contributors []map[string]any
	for _, entry := range documents(value) {
		person := mapPerson(entry)
		switch core.StringField(entry, "contributorType") {
		case "RightsHolder":
			rightsHolders = append(rightsHolders, person)
		case "DataCurator":
			curators = append(curators, person)
		default:
			contributors = append(contributors, person)
		}
	}
	if len(rightsHolders) > 0 {
		dataset["rights_holder"] = rightsHolders
	}
	if len(curators) > 0 {
		dataset["curator"] = curators
	}
	if len(contributors) > 0 {
		dataset["contributor"] = contributors
	}
}

// Maps DataCite dates onto the dataset: Issued and Updated become the
// issued/modified instants, Collected ranges become temporal coverage.
func mapDates(value any, dataset map[string]any) {
	var temporal []map[string]any
	for _, entry := range documents(value) {
		date := core.StringField(entry, "date")
		switch core.StringField(entry, "dateType") {
		case "Issued":
			dataset["issued"] = datePart(date)
		case "Updated":
			dataset["modified"] = date
		case "Collected":
			start, end, found := strings.Cut(date, "/")
			if !found {
				end = start
			}
			temporal = append(temporal, map[string]any{
				"start_date": start,
				"end_date":   end,
			})
		}
	}
	if len(temporal) > 0 {
		dataset["temporal"] = temporal
	}
}

// converts DataCite geolocations to named places with WKT geometry
func mapGeoLocations(value any) []map[string]any {
	spatial := make([]map[string]any, 0)
	for _, entry := range documents(value) {
		location := map[string]any{}
		if place := core.StringField(entry, "geoLocationPlace"); place != "" {
			location["geographic_name"] = place
		}
		var geometry []string
		if point, ok := entry["geoLocationPoint"].(map[string]any); ok {
			geometry = append(geometry, fmt.Sprintf("POINT(%v %v)",
				point["pointLongitude"], point["pointLatitude"]))
		}
		if box, ok := entry["geoLocationBox"].(map[string]any); ok {
			west, east := box["westBoundLongitude"], box["eastBoundLongitude"]
			south, north := box["southBoundLatitude"], box["northBoundLatitude"]
			geometry = append(geometry, fmt.Sprintf(
				"POLYGON((%v %v, %v %v, %v %v, %v %v, %v %v))",
				west, south, east, south, east, north, west, north, west, south))
		}
		if len(geometry) > 0 {
			location["as_wkt"] = geometry
		}
		if len(location) > 0 {
			spatial = append(spatial, location)
		}
	}
	return spatial
}

// converts DataCite alternate identifiers to Metax other-identifier records
func mapOtherIdentifiers(value any) []map[string]any {
	identifiers := make([]map[string]any, 0)
	for _, entry := range documents(value) {
		identifiers = append(identifiers, map[string]any{
			"notation": core.StringField(entry, "alternateIdentifier"),
			"type": map[string]any{
				"identifier": core.StringField(entry, "alternateIdentifierType"),
			},
		})
	}
	return identifiers
}

// the calendar-date part of an ISO timestamp
func datePart(date string) string {
	if len(date) > 10 {
		return date[:10]
	}
	return date
}

func documents(value any) []core.Document {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	entries := make([]core.Document, 0, len(items))
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	texts := make([]string, 0, len(items))
	for _, item := range items {
		if text, ok := item.(string); ok {
			texts = append(texts, text)
		}
	}
	return texts
}
