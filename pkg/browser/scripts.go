package browser

// ProbeScript lists fillable elements in document order and returns them as a
// JSON string of page.Candidate objects. Pages without <form> elements fall
// back to div/section containers holding more than one fillable element.
const ProbeScript = `() => {
	const FILLABLE = 'input, textarea, select';
	const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : String(s).replace(/([^\w-])/g, '\\$1');

	const unique = (el) => {
		if (el.id) {
			const s = '#' + esc(el.id);
			if (document.querySelectorAll(s).length === 1) return s;
		}
		const tag = el.tagName.toLowerCase();
		const name = el.getAttribute('name');
		if (name && (tag === 'input' || tag === 'select' || tag === 'textarea')) {
			const s = tag + '[name="' + name.replace(/"/g, '\\"') + '"]';
			if (document.querySelectorAll(s).length === 1) return s;
		}
		const parts = [];
		let node = el;
		for (; node && node.nodeType === 1 && node !== document.documentElement; node = node.parentElement) {
			if (node !== el && node.id && document.querySelectorAll('#' + esc(node.id)).length === 1) {
				parts.unshift('#' + esc(node.id));
				break;
			}
			let nth = 1;
			for (let sib = node.previousElementSibling; sib; sib = sib.previousElementSibling) {
				if (sib.tagName === node.tagName) nth++;
			}
			parts.unshift(node.tagName.toLowerCase() + ':nth-of-type(' + nth + ')');
		}
		if (parts.length === 0 || !parts[0].startsWith('#')) parts.unshift('html');
		return parts.join(' > ');
	};

	const forms = Array.from(document.querySelectorAll('form'));
	const containers = new Set(forms.length > 0 ? forms :
		Array.from(document.querySelectorAll('div, section')).filter((el) => el.querySelectorAll(FILLABLE).length > 1));
	const containerOf = (el) => {
		for (let node = el.parentElement; node; node = node.parentElement) {
			if (containers.has(node)) return unique(node);
		}
		return '';
	};

	const visible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	};

	const out = [];
	document.querySelectorAll(FILLABLE).forEach((el) => {
		const attributes = {};
		for (const a of Array.from(el.attributes)) attributes[a.name] = a.value;
		let labelText = '';
		if (el.labels && el.labels.length > 0) labelText = (el.labels[0].textContent || '').trim();
		const c = {
			tag: el.tagName.toLowerCase(),
			attributes,
			selector: unique(el),
			visible: visible(el),
			container: containerOf(el),
			labelText,
		};
		if (c.tag === 'select') c.options = Array.from(el.options).map((o) => (o.text || '').trim());
		out.push(c);
	});
	return JSON.stringify(out);
}`

// StateScript reads the state of the element matched by args.selector and
// returns it as a JSON ElementState.
const StateScript = `(args) => {
	let el = null;
	try { el = document.querySelector(args.selector); } catch (e) { el = null; }
	if (!el) return JSON.stringify({ found: false });

	const style = window.getComputedStyle(el);
	const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
		!!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	const state = {
		found: true,
		tag: el.tagName.toLowerCase(),
		type: (el.getAttribute('type') || '').toLowerCase(),
		disabled: !!el.disabled,
		readOnly: !!el.readOnly,
		visible,
		value: el.value === undefined || el.value === null ? '' : String(el.value),
		checked: !!el.checked,
	};
	if (state.tag === 'select') {
		state.options = Array.from(el.options).map((o) => ({ value: o.value, label: (o.text || '').trim(), selected: o.selected }));
	}
	return JSON.stringify(state);
}`

// WriteScript applies a write plan in the page: args.action is "fill",
// "select", or "check", args.value the text or option value, args.checked
// the toggle state. It dispatches input and change events so framework
// bindings see the new value, and returns "ok" or "not-found".
const WriteScript = `(args) => {
	let el = null;
	try { el = document.querySelector(args.selector); } catch (e) { el = null; }
	if (!el) return 'not-found';

	if (args.action === 'check') {
		if (el.checked !== args.checked) el.click();
		if (el.checked !== args.checked) el.checked = args.checked;
	} else {
		const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype :
			el.tagName === 'SELECT' ? HTMLSelectElement.prototype : HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		el.focus();
		if (desc && desc.set) desc.set.call(el, args.value); else el.value = args.value;
	}
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return 'ok';
}`
