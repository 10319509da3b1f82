// Package catalog is the static registry of service offerings per vehicle
// category. Data is configuration, not runtime-mutable; prices are in whole
// rupees.
package catalog

import (
	"fmt"

	"fadedreams/roadassist/domain"
)

var services = map[domain.VehicleCategory][]domain.Service{
	domain.VehicleBike: {
		{ID: "flat-tire", Name: "Flat Tire Repair", Description: "Puncture repair and tire replacement", Price: 200, Icon: "fa-tire"},
		{ID: "battery-jumpstart", Name: "Battery Jumpstart", Description: "Battery charging and jumpstart service", Price: 300, Icon: "fa-battery-half"},
		{ID: "chain-repair", Name: "Chain Repair", Description: "Chain cleaning, lubrication and repair", Price: 150, Icon: "fa-link"},
		{ID: "brake-repair", Name: "Brake Repair", Description: "Brake pad replacement and adjustment", Price: 400, Icon: "fa-hand-paper"},
		{ID: "engine-service", Name: "Engine Service", Description: "Engine oil change and basic service", Price: 500, Icon: "fa-cog"},
		{ID: "electrical", Name: "Electrical Repair", Description: "Wiring and electrical component repair", Price: 350, Icon: "fa-bolt"},
		{ID: "horn-repair", Name: "Horn Repair", Description: "Horn replacement and repair", Price: 100, Icon: "fa-volume-up"},
		{ID: "lights", Name: "Lights Repair", Description: "Headlight and taillight repair", Price: 200, Icon: "fa-lightbulb"},
	},
	domain.VehicleCar: {
		{ID: "flat-tire", Name: "Flat Tire Repair", Description: "Puncture repair and tire replacement", Price: 500, Icon: "fa-tire"},
		{ID: "battery-jumpstart", Name: "Battery Jumpstart", Description: "Battery charging and jumpstart service", Price: 600, Icon: "fa-battery-half"},
		{ID: "oil-change", Name: "Oil Change", Description: "Engine oil and filter change", Price: 800, Icon: "fa-oil-can"},
		{ID: "brake-repair", Name: "Brake Repair", Description: "Brake pad and disc replacement", Price: 1200, Icon: "fa-hand-paper"},
		{ID: "ac-service", Name: "AC Service", Description: "Air conditioning repair and service", Price: 1000, Icon: "fa-snowflake"},
		{ID: "electrical", Name: "Electrical Repair", Description: "Wiring and electrical component repair", Price: 700, Icon: "fa-bolt"},
		{ID: "engine-service", Name: "Engine Service", Description: "Complete engine service and maintenance", Price: 1500, Icon: "fa-cog"},
		{ID: "emergency-repair", Name: "Emergency Repair", Description: "On-the-spot emergency repairs", Price: 2000, Icon: "fa-tools"},
	},
}

// ListServices returns the offerings for a vehicle category in declaration
// order. The returned slice is a copy.
func ListServices(category domain.VehicleCategory) ([]domain.Service, error) {
	list, ok := services[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	out := make([]domain.Service, len(list))
	copy(out, list)
	return out, nil
}

// Lookup resolves one offering by category and service id.
func Lookup(category domain.VehicleCategory, serviceID string) (domain.Service, error) {
	list, ok := services[category]
	if !ok {
		return domain.Service{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	for _, svc := range list {
		if svc.ID == serviceID {
			return svc, nil
		}
	}
	return domain.Service{}, fmt.Errorf("service %q for %s: %w", serviceID, category, domain.ErrNotFound)
}
