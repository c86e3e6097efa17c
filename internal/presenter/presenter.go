// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak"

	"github.com/wneessen/icecream-benelux/internal/config"
	"github.com/wneessen/icecream-benelux/internal/i18n"
	"github.com/wneessen/icecream-benelux/internal/sensor"
)

// SensorView is the template representation of one provider sensor.
type SensorView struct {
	ID        string
	UniqueID  string
	Name      string
	Known     bool
	Distance  float64
	Label     string
	Status    string
	Latitude  float64
	Longitude float64
	State     string
	Updated   time.Time
}

type TemplateContext struct {
	UpdateTime time.Time
	Sensors    []SensorView
	// Nearest is the known sensor with the smallest distance, nil if no sensor is known.
	Nearest *SensorView
}

type Presenter struct {
	TextTemplate    *template.Template
	TooltipTemplate *template.Template

	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	if loc == nil {
		return nil, fmt.Errorf("localizer is required")
	}
	pres := &Presenter{
		localizer: loc,
		humanizer: humanize.MustNew().CreateHumanizer(i18n.Tag(conf.Locale)),
	}

	tpl, err := template.New("text").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	pres.TextTemplate = tpl

	tpl, err = template.New("tooltip").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	pres.TooltipTemplate = tpl

	// Catch references to unknown fields at startup instead of on the first output tick
	if _, err = pres.Render(TemplateContext{Nearest: &SensorView{}, Sensors: []SensorView{{}}}); err != nil {
		return nil, err
	}

	return pres, nil
}

func (p *Presenter) BuildContext(sensors []sensor.Sensor, now time.Time) TemplateContext {
	tplCtx := TemplateContext{
		UpdateTime: now,
		Sensors:    make([]SensorView, 0, len(sensors)),
	}
	for _, s := range sensors {
		tplCtx.Sensors = append(tplCtx.Sensors, p.viewFromSensor(s))
	}
	for i, view := range tplCtx.Sensors {
		if !view.Known {
			continue
		}
		if tplCtx.Nearest == nil || view.Distance < tplCtx.Nearest.Distance {
			tplCtx.Nearest = &tplCtx.Sensors[i]
		}
	}
	return tplCtx
}

func (p *Presenter) Render(tplCtx TemplateContext) (map[string]string, error) {
	output := make(map[string]string)
	buf := bytes.NewBuffer(nil)
	if err := p.TextTemplate.Execute(buf, tplCtx); err != nil {
		return output, fmt.Errorf("failed to render text template: %w", err)
	}
	output["text"] = buf.String()

	buf.Reset()
	if err := p.TooltipTemplate.Execute(buf, tplCtx); err != nil {
		return output, fmt.Errorf("failed to render tooltip template: %w", err)
	}
	output["tooltip"] = buf.String()

	return output, nil
}

func (p *Presenter) viewFromSensor(s sensor.Sensor) SensorView {
	view := SensorView{
		ID:       s.ProviderID,
		UniqueID: s.UniqueID,
		Name:     s.Name,
		Known:    s.Known(),
		State:    s.LastState.String(),
		Updated:  s.Updated,
	}
	if s.Known() {
		view.Distance = s.Distance.Value()
	}
	if s.Attributes != nil {
		view.Label = s.Attributes.Label
		view.Status = s.Attributes.Status
		view.Latitude = s.Attributes.Latitude
		view.Longitude = s.Attributes.Longitude
	}
	return view
}
