package browser

// visibleTextJS collapses the page's rendered text into a single trimmed
// string. Whitespace runs are squashed so the advisor prompt stays compact.
const visibleTextJS = `(() => {
	const text = document.body ? document.body.innerText : "";
	return text.replace(/\s+/g, " ").trim();
})()`

// extractElementsJS collects the page's interactive elements with stable CSS
// selectors. Selector preference: id, then name, then an nth-of-type path.
// The shape must match schemas.PageElement's JSON tags.
const extractElementsJS = `(() => {
	const cssPath = (el) => {
		if (el.id) return "#" + CSS.escape(el.id);
		if (el.name) return el.tagName.toLowerCase() + "[name=\"" + el.name + "\"]";
		const path = [];
		while (el && el.nodeType === Node.ELEMENT_NODE && path.length < 5) {
			let part = el.tagName.toLowerCase();
			const parent = el.parentElement;
			if (parent) {
				const siblings = Array.from(parent.children).filter(c => c.tagName === el.tagName);
				if (siblings.length > 1) {
					part += ":nth-of-type(" + (siblings.indexOf(el) + 1) + ")";
				}
			}
			path.unshift(part);
			el = parent;
		}
		return path.join(" > ");
	};

	const isVisible = (el) => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		return rect.width > 0 && rect.height > 0 &&
			style.visibility !== "hidden" && style.display !== "none";
	};

	const selectorList = "a[href], button, input, select, textarea, [role=button], [onclick]";
	return Array.from(document.querySelectorAll(selectorList)).map(el => ({
		selector: cssPath(el),
		tag: el.tagName.toLowerCase(),
		type: el.type || "",
		text: (el.innerText || el.value || el.placeholder || "").trim().slice(0, 80),
		name: el.name || "",
		href: el.href || "",
		visible: isVisible(el),
	})).filter(e => e.visible);
})()`
